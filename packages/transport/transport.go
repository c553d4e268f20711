package transport

import (
	"errors"
	"time"
)

const (
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

var (
	// ErrClosed is returned by every operation on a closed transport
	ErrClosed = errors.New("transport: closed")
	// ErrBadHandle is returned for a handle this transport did not create
	ErrBadHandle = errors.New("transport: invalid handle")
	// ErrAddedAlready is returned when adding a handle that is already registered
	ErrAddedAlready = errors.New("transport: handle already added")
	// ErrNotAdded is returned when removing a handle that is not registered
	ErrNotAdded = errors.New("transport: handle not added")
)

// Transport drives many handles from one caller. Perform never blocks; Wait is
// the only call that does. A Transport is used from one goroutine at a time.
type Transport interface {
	// NewHandle builds a request from an option set. No I/O happens here.
	NewHandle(opts Options) (Handle, error)
	// NewShare builds state that handles referencing it through OptShare reuse.
	NewShare(settings ShareSettings) (Share, error)
	// SetOption applies an engine-wide setting.
	SetOption(opt MultiOption, value any) error
	// Add registers a handle. Its transfer starts on the next Perform.
	Add(h Handle) error
	// Remove deregisters a handle, aborting it if it is still running.
	Remove(h Handle) error
	// Perform advances every registered handle and reports how many still run.
	Perform() (running int, err error)
	// InfoRead pops one completion message, if any.
	InfoRead() (Message, bool)
	// Wait blocks until a handle has progress to report or timeout elapses.
	Wait(timeout time.Duration) (int, error)
	// Close releases pooled connections. It is safe to call more than once.
	Close() error
}

// Handle is one request. After completion it holds the buffered response
// until Close.
type Handle interface {
	// Content returns the buffered response: the header block when OptHeader
	// is set, followed by the body when OptReturnTransfer is set.
	Content() []byte
	// HeaderSize is the length of the header block at the start of Content.
	HeaderSize() int
	Info() Info
	Close() error
}

// Share is cross-request state (cookies, connections) referenced by handles
// through OptShare. It may outlive any batch.
type Share interface {
	Close() error
}

// Message reports that a handle finished.
type Message struct {
	Handle Handle
	Result Code
	// Err is the underlying error behind a non-OK Result, if any.
	Err error
}

// Info describes a finished transfer.
type Info struct {
	ID               string
	StatusCode       int
	EffectiveURL     string
	Proto            string
	ConnectionReused bool
	HeaderOut        string
	TotalTime        time.Duration
}
