package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/stats"
)

// TAPFormatter formats batch results in TAP (Test Anything Protocol)
// format, one test point per request
type TAPFormatter struct {
	writer    io.Writer
	testCount int
	results   []tapResult
	comments  []string
}

type tapResult struct {
	number  int
	name    string
	passed  bool
	skipped bool
	error   string
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer:  os.Stdout,
		results: make([]tapResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatResult(result *Result) {
	for i := 0; i < result.Count(); i++ {
		f.testCount++
		tr := tapResult{
			number: f.testCount,
			name:   fmt.Sprintf("%s [%d] %s", result.Source, i, result.Label(i)),
		}

		resp := result.response(i)
		msg, failed := result.Failures[i]
		switch {
		case failed:
			tr.error = msg
		case resp == nil && result.Err != nil && len(result.Failures) == 0:
			tr.error = result.Err.Error()
		case resp == nil:
			tr.skipped = true
		case result.schemaError(i) != nil:
			tr.error = result.schemaError(i).Error()
		default:
			tr.passed = true
		}

		f.results = append(f.results, tr)
	}
}

func (f *TAPFormatter) FormatStats(s *stats.Summary) {
	f.comments = append(f.comments,
		fmt.Sprintf("requests: %d, failed: %d", s.Requests, s.ErrorCount),
		fmt.Sprintf("latency p50: %s, p95: %s, p99: %s", s.P50, s.P95, s.P99),
	)
}

func (f *TAPFormatter) FormatError(err error) {
	// Errors are included in individual test points
}

func (f *TAPFormatter) FormatHeader(version string) {
	// Header is written in Flush
}

// Flush writes the accumulated TAP output
func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", f.testCount)

	for _, r := range f.results {
		switch {
		case r.skipped:
			fmt.Fprintf(f.writer, "ok %d - %s # SKIP not returned\n", r.number, r.name)
		case r.passed:
			fmt.Fprintf(f.writer, "ok %d - %s\n", r.number, r.name)
		default:
			fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
			fmt.Fprintf(f.writer, "  ---\n")
			fmt.Fprintf(f.writer, "  message: %s\n", escapeYAML(r.error))
			fmt.Fprintf(f.writer, "  severity: error\n")
			fmt.Fprintf(f.writer, "  ...\n")
		}
	}

	for _, c := range f.comments {
		fmt.Fprintf(f.writer, "# %s\n", c)
	}
	fmt.Fprintf(f.writer, "# time: %dms\n", totalDuration.Milliseconds())

	return nil
}

func escapeYAML(s string) string {
	// Simple YAML escaping - wrap in quotes if contains special chars
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		return "\"" + s + "\""
	}
	return s
}
