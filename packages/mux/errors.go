package mux

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitmux/packages/transport"
	"go.uber.org/multierr"
)

var (
	// ErrClosed is returned by every operation on a closed Context
	ErrClosed = errors.New("mux: context closed")
	// ErrBusy is returned when Execute is called while another Execute runs on the same Context
	ErrBusy = errors.New("mux: execute already in progress")
	// ErrEmptyBatch is returned when Execute gets no option sets
	ErrEmptyBatch = errors.New("mux: batch must contain at least one request")
)

// ConfigurationError reports an engine, share or request option the
// transport rejected. It is a programming error, not a runtime condition.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mux: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RequestError is one handle's transport failure inside a batch.
type RequestError struct {
	Index int
	Code  transport.Code
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%d: %s", e.Index, transport.Strerror(e.Code))
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// BatchError aggregates every failed handle of a batch, ordered by index.
// Its message has one "<index>: <message>" line per failure.
type BatchError struct {
	err error
}

func newBatchError(failures map[int]*RequestError) *BatchError {
	indices := make([]int, 0, len(failures))
	for i := range failures {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var err error
	for _, i := range indices {
		err = multierr.Append(err, failures[i])
	}
	return &BatchError{err: err}
}

// Errors returns the per-request failures in index order.
func (e *BatchError) Errors() []*RequestError {
	errs := multierr.Errors(e.err)
	out := make([]*RequestError, 0, len(errs))
	for _, err := range errs {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			out = append(out, reqErr)
		}
	}
	return out
}

// Indices returns the failed indices in ascending order.
func (e *BatchError) Indices() []int {
	errs := e.Errors()
	out := make([]int, len(errs))
	for i, err := range errs {
		out[i] = err.Index
	}
	return out
}

func (e *BatchError) Error() string {
	errs := multierr.Errors(e.err)
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}

func (e *BatchError) Unwrap() []error {
	return multierr.Errors(e.err)
}

// FatalError means the transport itself failed to make progress. The batch
// was aborted and every handle deregistered before it was returned.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("mux: batch aborted during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
