// Package transporttest provides an in-memory Transport for engine tests.
package transporttest

import (
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/transport"
)

// Response scripts the outcome of every handle whose OptURL matches.
type Response struct {
	Code   transport.Code
	Steps  int // Perform calls before the handle completes, at least 1
	Header string
	Body   string
}

// Fake is a scripted transport. Handles complete after their Response.Steps
// Perform calls; URLs without a Response succeed on the first step.
type Fake struct {
	mu sync.Mutex

	Responses map[string]Response

	// NewHandleErr fails every NewHandle call.
	NewHandleErr error
	// ShareErr fails every NewShare call.
	ShareErr error
	// RejectOption makes SetOption fail for this key.
	RejectOption transport.MultiOption
	// AddErr fails the Add call with index FailAddAt (0-based, counted over
	// the fake's lifetime).
	AddErr    error
	FailAddAt int
	// PerformErr fails every Perform call after the first FailPerformAfter.
	PerformErr       error
	FailPerformAfter int
	// WaitErr fails the first WaitErrTimes Wait calls.
	WaitErr      error
	WaitErrTimes int

	EngineOptions map[transport.MultiOption]any

	added   map[*Handle]struct{}
	queue   []transport.Message
	handles []*Handle
	closed  bool

	Adds     int
	Removes  int
	Performs int
	Waits    int
	Closes   int
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Responses:     make(map[string]Response),
		EngineOptions: make(map[transport.MultiOption]any),
		FailAddAt:     -1,
		added:         make(map[*Handle]struct{}),
	}
}

// Handle is a Fake handle.
type Handle struct {
	Opts transport.Options

	resp      transport.Code
	header    string
	body      string
	remaining int
	done      bool
	closed    bool
}

func (h *Handle) Content() []byte {
	if h.closed || !h.done {
		return nil
	}
	return []byte(h.header + h.body)
}

func (h *Handle) HeaderSize() int {
	if h.closed || !h.done {
		return 0
	}
	return len(h.header)
}

func (h *Handle) Info() transport.Info {
	url, _ := h.Opts[transport.OptURL].(string)
	return transport.Info{EffectiveURL: url}
}

func (h *Handle) Close() error {
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	return h.closed
}

// Share is a Fake share.
type Share struct {
	Settings transport.ShareSettings
	closed   bool
}

func (s *Share) Close() error {
	s.closed = true
	return nil
}

func (f *Fake) NewHandle(opts transport.Options) (transport.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.NewHandleErr != nil {
		return nil, f.NewHandleErr
	}

	h := &Handle{Opts: opts.Clone(), remaining: 1}
	url, ok := opts[transport.OptURL].(string)
	switch {
	case !ok || url == "":
		h.resp = transport.CodeURLMalformat
	default:
		if r, scripted := f.Responses[url]; scripted {
			h.resp = r.Code
			h.header = r.Header
			h.body = r.Body
			if r.Steps > 1 {
				h.remaining = r.Steps
			}
		}
	}

	f.handles = append(f.handles, h)
	return h, nil
}

func (f *Fake) NewShare(settings transport.ShareSettings) (transport.Share, error) {
	if f.ShareErr != nil {
		return nil, f.ShareErr
	}
	return &Share{Settings: settings}, nil
}

func (f *Fake) SetOption(opt transport.MultiOption, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if opt == f.RejectOption {
		return &transport.OptionError{Option: opt.String(), Value: value, Reason: "rejected by fake"}
	}
	f.EngineOptions[opt] = value
	return nil
}

func (f *Fake) Add(h transport.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, ok := h.(*Handle)
	if !ok {
		return transport.ErrBadHandle
	}
	if f.closed {
		return transport.ErrClosed
	}

	idx := f.Adds
	f.Adds++
	if f.AddErr != nil && idx == f.FailAddAt {
		return f.AddErr
	}
	if _, exists := f.added[fh]; exists {
		return transport.ErrAddedAlready
	}
	f.added[fh] = struct{}{}
	return nil
}

func (f *Fake) Remove(h transport.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, ok := h.(*Handle)
	if !ok {
		return transport.ErrBadHandle
	}
	if _, exists := f.added[fh]; !exists {
		return transport.ErrNotAdded
	}
	delete(f.added, fh)
	f.Removes++
	return nil
}

func (f *Fake) Perform() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Performs++
	if f.closed {
		return 0, transport.ErrClosed
	}
	if f.PerformErr != nil && f.Performs > f.FailPerformAfter {
		return 0, f.PerformErr
	}

	running := 0
	// Walk in creation order so completions are deterministic.
	for _, h := range f.handles {
		if _, registered := f.added[h]; !registered || h.done {
			continue
		}
		h.remaining--
		if h.remaining <= 0 {
			h.done = true
			f.queue = append(f.queue, transport.Message{Handle: h, Result: h.resp})
			continue
		}
		running++
	}
	return running, nil
}

func (f *Fake) InfoRead() (transport.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return transport.Message{}, false
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, true
}

func (f *Fake) Wait(timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Waits++
	if f.WaitErr != nil && f.Waits <= f.WaitErrTimes {
		return 0, f.WaitErr
	}
	return 1, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Closes++
	f.closed = true
	return nil
}

// Registered returns how many handles are currently added.
func (f *Fake) Registered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

// Handles returns every handle built so far, in creation order.
func (f *Fake) Handles() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Handle, len(f.handles))
	copy(out, f.handles)
	return out
}
