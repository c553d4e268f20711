package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// NetTransport implements Transport on top of net/http. Each started handle
// runs its round trip on its own goroutine; completions are queued and handed
// out by InfoRead.
type NetTransport struct {
	mu       sync.Mutex
	settings poolSettings
	pool     *pool
	limiter  *rate.Limiter
	logger   zerolog.Logger

	// diag holds one synchronized writer per distinct OptStderr.
	diag map[io.Writer]io.Writer

	added   map[*netHandle]struct{}
	pending []*netHandle
	done    []Message
	wake    chan struct{}
	closed  bool
}

// NetOption configures a NetTransport
type NetOption func(*NetTransport)

// WithLogger sets the logger used for transport events
func WithLogger(logger zerolog.Logger) NetOption {
	return func(t *NetTransport) {
		t.logger = logger
	}
}

// WithDialTimeout bounds connection establishment
func WithDialTimeout(d time.Duration) NetOption {
	return func(t *NetTransport) {
		t.settings.dialTimeout = d
	}
}

// NewNetTransport creates a transport with its own connection pool.
func NewNetTransport(opts ...NetOption) *NetTransport {
	t := &NetTransport{
		logger: zerolog.Nop(),
		diag:   make(map[io.Writer]io.Writer),
		added:  make(map[*netHandle]struct{}),
		wake:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.pool = newPool(t.settings)
	return t
}

func (t *NetTransport) NewHandle(opts Options) (Handle, error) {
	r, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	if r.share != nil {
		s, ok := r.share.(*netShare)
		if !ok {
			return nil, &OptionError{Option: OptShare.String(), Value: r.share, Reason: "share was not created by this transport"}
		}
		if s.isClosed() {
			return nil, &OptionError{Option: OptShare.String(), Value: r.share, Reason: "share is closed"}
		}
	}

	var diag io.Writer
	if r.verbose {
		diag = t.diagWriter(r.stderr)
	}
	return newNetHandle(r, diag), nil
}

// diagWriter returns the synchronized writer verbose handles log to. Handles
// given the same OptStderr share one lock.
func (t *NetTransport) diagWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	if !reflect.TypeOf(w).Comparable() {
		return zerolog.SyncWriter(w)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	synced, ok := t.diag[w]
	if !ok {
		synced = zerolog.SyncWriter(w)
		t.diag[w] = synced
	}
	return synced
}

func (t *NetTransport) NewShare(settings ShareSettings) (Share, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	return newNetShare(settings, t.settings)
}

func (t *NetTransport) SetOption(opt MultiOption, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	settings := t.settings
	switch opt {
	case MultiPipelining:
		mode, ok := value.(Pipelining)
		if !ok {
			n, isInt := value.(int)
			if !isInt {
				return &OptionError{Option: opt.String(), Value: value, Reason: fmt.Sprintf("unexpected value type %T", value)}
			}
			mode = Pipelining(n)
		}
		if mode < PipeNothing || mode > PipeMultiplex {
			return &OptionError{Option: opt.String(), Value: value, Reason: "unknown pipelining mode"}
		}
		settings.pipelining = mode

	case MultiMaxHostConnections, MultiMaxTotalConnections:
		n, ok := value.(int)
		if !ok || n < 0 {
			return &OptionError{Option: opt.String(), Value: value, Reason: "expected a non-negative int"}
		}
		if opt == MultiMaxHostConnections {
			settings.maxHost = n
		} else {
			settings.maxTotal = n
		}

	case MultiMaxRequestRate:
		var perSecond float64
		switch v := value.(type) {
		case float64:
			perSecond = v
		case int:
			perSecond = float64(v)
		default:
			return &OptionError{Option: opt.String(), Value: value, Reason: fmt.Sprintf("unexpected value type %T", value)}
		}
		if perSecond < 0 {
			return &OptionError{Option: opt.String(), Value: value, Reason: "rate cannot be negative"}
		}
		if perSecond == 0 {
			t.limiter = nil
		} else {
			t.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
		return nil

	default:
		return &OptionError{Option: opt.String(), Value: value, Reason: "unknown option"}
	}

	t.settings = settings
	t.pool.reset(settings)
	t.logger.Debug().Str("option", opt.String()).Interface("value", value).Msg("engine option set")
	return nil
}

func (t *NetTransport) Add(h Handle) error {
	nh, ok := h.(*netHandle)
	if !ok {
		return ErrBadHandle
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, exists := t.added[nh]; exists {
		return ErrAddedAlready
	}
	if nh.isStarted() {
		return ErrAddedAlready
	}

	t.added[nh] = struct{}{}
	t.pending = append(t.pending, nh)
	return nil
}

func (t *NetTransport) Remove(h Handle) error {
	nh, ok := h.(*netHandle)
	if !ok {
		return ErrBadHandle
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.added[nh]; !exists {
		return ErrNotAdded
	}
	delete(t.added, nh)

	for i, p := range t.pending {
		if p == nh {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}

	queued := t.done[:0]
	for _, msg := range t.done {
		if msg.Handle != h {
			queued = append(queued, msg)
		}
	}
	t.done = queued

	nh.abort()
	return nil
}

func (t *NetTransport) Perform() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}

	waiting := t.pending[:0]
	for _, h := range t.pending {
		if t.limiter != nil && !t.limiter.Allow() {
			waiting = append(waiting, h)
			continue
		}
		t.start(h)
	}
	t.pending = waiting

	running := 0
	for h := range t.added {
		if !h.isFinished() {
			running++
		}
	}
	return running, nil
}

func (t *NetTransport) InfoRead() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.done) == 0 {
		return Message{}, false
	}
	msg := t.done[0]
	t.done = t.done[1:]
	return msg, true
}

func (t *NetTransport) Wait(timeout time.Duration) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	if n := len(t.done); n > 0 {
		t.mu.Unlock()
		return n, nil
	}
	// Handles held back by the rate limiter become startable before the
	// caller's timeout would fire.
	if t.limiter != nil && len(t.pending) > 0 {
		r := t.limiter.Reserve()
		if delay := r.Delay(); delay < timeout {
			timeout = delay
		}
		r.Cancel()
	}
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.wake:
		t.mu.Lock()
		n := len(t.done)
		t.mu.Unlock()
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

func (t *NetTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for h := range t.added {
		h.abort()
	}
	t.added = make(map[*netHandle]struct{})
	t.pending = nil
	t.done = nil
	t.pool.closeIdle()
	return nil
}

// start must be called with t.mu held.
func (t *NetTransport) start(h *netHandle) {
	ctx, cancel := context.WithCancel(context.Background())
	client := h.client(t.pool)
	pipelining := t.settings.pipelining
	h.begin(cancel)

	go func() {
		code, err := h.perform(ctx, client, pipelining)
		cancel()
		t.finish(h, code, err)
	}()
}

func (t *NetTransport) finish(h *netHandle, code Code, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h.markFinished()
	if _, registered := t.added[h]; !registered {
		return
	}

	t.done = append(t.done, Message{Handle: h, Result: code, Err: err})
	if code != CodeOK {
		t.logger.Debug().Str("handle", h.id).Str("result", Strerror(code)).Err(err).Msg("transfer failed")
	}

	select {
	case t.wake <- struct{}{}:
	default:
	}
}
