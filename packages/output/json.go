package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/response"
	"github.com/abdul-hamid-achik/hitmux/packages/stats"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Batches  []JSONBatch `json:"batches"`
	Stats    *JSONStats  `json:"stats,omitempty"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary counts requests over all batches
type JSONSummary struct {
	Total       int `json:"total"`
	OK          int `json:"ok"`
	Failed      int `json:"failed"`
	NotReturned int `json:"notReturned"`
}

// JSONBatch represents one executed batch
type JSONBatch struct {
	Source   string        `json:"source"`
	Passed   bool          `json:"passed"`
	Error    string        `json:"error,omitempty"`
	Duration float64       `json:"duration"`
	Requests []JSONRequest `json:"requests"`
}

// JSONRequest represents one request of a batch
type JSONRequest struct {
	Index       int            `json:"index"`
	Name        string         `json:"name"`
	Error       string         `json:"error,omitempty"`
	SchemaError string         `json:"schemaError,omitempty"`
	Response    *JSONResponse  `json:"response,omitempty"`
	Extracted   map[string]any `json:"extracted,omitempty"`
}

// JSONResponse represents response details
type JSONResponse struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	StatusCode int               `json:"statusCode"`
	Proto      string            `json:"proto,omitempty"`
	Reused     bool              `json:"reused"`
	Headers    *response.Headers `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Duration   float64           `json:"duration"`
}

// JSONStats is the latency summary, in milliseconds
type JSONStats struct {
	Batches   int64   `json:"batches"`
	Requests  int64   `json:"requests"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"errorRate"`
	Min       float64 `json:"min"`
	Mean      float64 `json:"mean"`
	Max       float64 `json:"max"`
	StdDev    float64 `json:"stddev"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
}

// JSONFormatter formats batch results as JSON
type JSONFormatter struct {
	writer  io.Writer
	batches []JSONBatch
	stats   *JSONStats
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		batches: make([]JSONBatch, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatResult(result *Result) {
	batch := JSONBatch{
		Source:   result.Source,
		Passed:   result.Passed(),
		Duration: millis(result.Duration),
		Requests: make([]JSONRequest, 0, result.Count()),
	}
	if result.Err != nil {
		batch.Error = result.Err.Error()
	}

	for i := 0; i < result.Count(); i++ {
		req := JSONRequest{
			Index:     i,
			Name:      result.Label(i),
			Error:     result.Failures[i],
			Extracted: result.extracts(i),
		}
		if err := result.schemaError(i); err != nil {
			req.SchemaError = err.Error()
		}
		if resp := result.response(i); resp != nil {
			req.Response = &JSONResponse{
				ID:         resp.ID,
				URL:        resp.URL,
				StatusCode: resp.StatusCode,
				Proto:      resp.Proto,
				Reused:     resp.Reused,
				Headers:    resp.Headers,
				Body:       resp.BodyString(),
				Duration:   millis(resp.Duration),
			}
		}
		batch.Requests = append(batch.Requests, req)
	}

	f.batches = append(f.batches, batch)
}

func (f *JSONFormatter) FormatStats(s *stats.Summary) {
	f.stats = &JSONStats{
		Batches:   s.Batches,
		Requests:  s.Requests,
		Errors:    s.ErrorCount,
		ErrorRate: s.ErrorRate,
		Min:       millis(s.Min),
		Mean:      millis(s.Mean),
		Max:       millis(s.Max),
		StdDev:    millis(s.StdDev),
		P50:       millis(s.P50),
		P95:       millis(s.P95),
		P99:       millis(s.P99),
	}
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in the batch results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var summary JSONSummary
	for _, b := range f.batches {
		for _, r := range b.Requests {
			summary.Total++
			switch {
			case r.Error != "" || r.SchemaError != "":
				summary.Failed++
			case r.Response == nil:
				summary.NotReturned++
			default:
				summary.OK++
			}
		}
	}

	output := JSONOutput{
		Summary:  summary,
		Batches:  f.batches,
		Stats:    f.stats,
		Duration: millis(totalDuration),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
