package mux

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/transport"
	"github.com/rs/zerolog"
)

const (
	// DefaultWaitTimeout bounds one wait for transport progress
	DefaultWaitTimeout = time.Second
	// DefaultYield is how long the loop backs off when waiting itself fails
	DefaultYield = 100 * time.Microsecond
)

// Context is a reusable multiplexing context. It owns the transport, the
// default request options and the engine options. Execute calls on one
// Context must not overlap; an overlapping call returns ErrBusy.
type Context struct {
	transport   transport.Transport
	logger      zerolog.Logger
	waitTimeout time.Duration
	yield       time.Duration

	mu       sync.Mutex
	defaults transport.Options
	closed   bool
	running  atomic.Bool
}

// Option configures a Context
type Option func(*Context)

// WithTransport replaces the default net/http transport. The Context takes
// ownership and closes it on Close.
func WithTransport(t transport.Transport) Option {
	return func(c *Context) {
		c.transport = t
	}
}

// WithLogger sets the logger for batch events
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithWaitTimeout sets the liveness timeout of one wait for progress
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithYield sets the back-off used when the transport's wait fails
func WithYield(d time.Duration) Option {
	return func(c *Context) {
		if d >= 0 {
			c.yield = d
		}
	}
}

// New creates a Context. No network I/O happens until Execute.
func New(opts ...Option) *Context {
	c := &Context{
		logger:      zerolog.Nop(),
		waitTimeout: DefaultWaitTimeout,
		yield:       DefaultYield,
		defaults:    transport.Options{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = transport.NewNetTransport(transport.WithLogger(c.logger))
	}

	return c
}

// SetEngineOptions applies context-wide settings such as MultiPipelining.
// Keys are applied in ascending order and the first rejected one stops it.
func (c *Context) SetEngineOptions(options map[transport.MultiOption]any) error {
	if c.isClosed() {
		return ErrClosed
	}

	keys := make([]transport.MultiOption, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		if err := c.transport.SetOption(k, options[k]); err != nil {
			return &ConfigurationError{Op: "set engine option " + k.String(), Err: err}
		}
	}
	return nil
}

// SetDefaults replaces the default request options. Each Execute merges them
// under every request's own options, request values winning.
func (c *Context) SetDefaults(defaults transport.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults = defaults.Clone()
}

// Defaults returns a copy of the default request options.
func (c *Context) Defaults() transport.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults.Clone()
}

// Share creates cross-request state that requests reference through
// transport.OptShare, in this batch or later ones.
func (c *Context) Share(settings transport.ShareSettings) (transport.Share, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	share, err := c.transport.NewShare(settings)
	if err != nil {
		return nil, &ConfigurationError{Op: "create share", Err: err}
	}
	return share, nil
}

// Execute runs one batch to completion and returns its handles in input
// order. If any request fails the whole batch fails with a *BatchError and no
// handle is returned. A *FatalError means the transport stopped making
// progress. Every handle is deregistered before Execute returns.
func (c *Context) Execute(optionSets []transport.Options) ([]transport.Handle, error) {
	if len(optionSets) == 0 {
		return nil, ErrEmptyBatch
	}
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.running.Store(false)

	c.mu.Lock()
	closed := c.closed
	defaults := c.defaults
	c.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}

	start := time.Now()
	c.logger.Debug().Int("requests", len(optionSets)).Msg("batch started")

	handles, err := c.build(optionSets, defaults)
	if err != nil {
		return nil, err
	}

	failures, err := c.run(handles)
	if err != nil {
		closeHandles(handles)
		c.logger.Error().Err(err).Msg("batch aborted")
		return nil, err
	}

	if len(failures) > 0 {
		closeHandles(handles)
		batchErr := newBatchError(failures)
		c.logger.Debug().Ints("failed", batchErr.Indices()).Dur("elapsed", time.Since(start)).Msg("batch failed")
		return nil, batchErr
	}

	c.logger.Debug().Int("requests", len(handles)).Dur("elapsed", time.Since(start)).Msg("batch completed")
	return handles, nil
}

// Close releases the transport. It is idempotent and safe on a nil or
// partially built Context.
func (c *Context) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) build(optionSets []transport.Options, defaults transport.Options) ([]transport.Handle, error) {
	handles := make([]transport.Handle, 0, len(optionSets))
	for i, opts := range optionSets {
		h, err := c.transport.NewHandle(transport.Merge(defaults, opts))
		if err != nil {
			closeHandles(handles)
			return nil, &ConfigurationError{Op: fmt.Sprintf("build request %d", i), Err: err}
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// run registers every handle, drives the transport until nothing is running
// and deregisters the handles again, also when it aborts.
func (c *Context) run(handles []transport.Handle) (map[int]*RequestError, error) {
	index := make(map[transport.Handle]int, len(handles))
	for i, h := range handles {
		index[h] = i
	}

	added := 0
	defer func() {
		for _, h := range handles[:added] {
			if err := c.transport.Remove(h); err != nil {
				c.logger.Warn().Err(err).Int("index", index[h]).Msg("failed to deregister handle")
			}
		}
	}()

	for _, h := range handles {
		if err := c.transport.Add(h); err != nil {
			return nil, &FatalError{Op: "register", Err: err}
		}
		added++
	}

	failures := make(map[int]*RequestError)
	for {
		running, err := c.transport.Perform()
		if err != nil {
			return nil, &FatalError{Op: "perform", Err: err}
		}

		for {
			msg, ok := c.transport.InfoRead()
			if !ok {
				break
			}
			if msg.Result == transport.CodeOK {
				continue
			}
			i, known := index[msg.Handle]
			if !known {
				continue
			}
			failures[i] = &RequestError{Index: i, Code: msg.Result, Err: msg.Err}
			c.logger.Debug().Int("index", i).Str("result", transport.Strerror(msg.Result)).Msg("request failed")
		}

		if running == 0 {
			return failures, nil
		}

		if _, err := c.transport.Wait(c.waitTimeout); err != nil {
			time.Sleep(c.yield)
		}
	}
}

func closeHandles(handles []transport.Handle) {
	for _, h := range handles {
		_ = h.Close()
	}
}
