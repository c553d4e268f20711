package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/mux"
	"github.com/abdul-hamid-achik/hitmux/packages/response"
	"github.com/abdul-hamid-achik/hitmux/packages/stats"
)

// Formatter renders batch results
type Formatter interface {
	FormatHeader(version string)
	FormatResult(result *Result)
	FormatStats(summary *stats.Summary)
	FormatError(err error)
}

// Flushable is implemented by formatters that write everything at the end
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// Result is one executed batch. A failed batch has no responses: Failures
// holds the requests that caused it, every other request is reported as not
// returned.
type Result struct {
	Source    string
	Labels    []string
	Responses []*response.Response
	Failures  map[int]string
	Err       error
	Duration  time.Duration

	// Per response, filled in by the caller when extraction or schema
	// validation was requested.
	Extracts     []map[string]any
	SchemaErrors []error
}

// NewResult builds a Result from what mux.Context.Execute returned.
func NewResult(source string, labels []string, responses []*response.Response, err error, elapsed time.Duration) *Result {
	r := &Result{
		Source:    source,
		Labels:    labels,
		Responses: responses,
		Failures:  map[int]string{},
		Err:       err,
		Duration:  elapsed,
	}

	var batchErr *mux.BatchError
	if errors.As(err, &batchErr) {
		for _, reqErr := range batchErr.Errors() {
			msg := reqErr.Error()
			if reqErr.Err != nil {
				msg = fmt.Sprintf("%s (%v)", msg, reqErr.Err)
			}
			r.Failures[reqErr.Index] = msg
		}
	}
	return r
}

// Label names request i.
func (r *Result) Label(i int) string {
	if i < len(r.Labels) && r.Labels[i] != "" {
		return r.Labels[i]
	}
	return fmt.Sprintf("request %d", i)
}

// Count is the number of requests in the batch.
func (r *Result) Count() int {
	if len(r.Labels) > len(r.Responses) {
		return len(r.Labels)
	}
	return len(r.Responses)
}

// Passed reports whether the batch succeeded and every response matched its
// schema.
func (r *Result) Passed() bool {
	if r.Err != nil {
		return false
	}
	for _, err := range r.SchemaErrors {
		if err != nil {
			return false
		}
	}
	return true
}

func (r *Result) response(i int) *response.Response {
	if i < len(r.Responses) {
		return r.Responses[i]
	}
	return nil
}

func (r *Result) extracts(i int) map[string]any {
	if i < len(r.Extracts) {
		return r.Extracts[i]
	}
	return nil
}

func (r *Result) schemaError(i int) error {
	if i < len(r.SchemaErrors) {
		return r.SchemaErrors[i]
	}
	return nil
}
