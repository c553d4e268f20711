package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/stats"
)

// JSONExporter exports metrics to JSON format
type JSONExporter struct {
	writer    io.Writer
	filePath  string
	pretty    bool
	startTime time.Time
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile sets the output file for JSON metrics
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty enables pretty-printed JSON output
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// NewJSONExporter creates a new JSON metrics exporter
func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		startTime: time.Now(),
		pretty:    true,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JSONMetricsOutput is the complete JSON output structure
type JSONMetricsOutput struct {
	Metadata JSONMetadata `json:"metadata"`
	Summary  JSONSummary  `json:"summary"`
	Hosts    []JSONHost   `json:"hosts,omitempty"`
}

// JSONMetadata contains metadata about the metrics collection
type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	Duration    string `json:"duration"`
}

// JSONSummary holds the overall numbers, durations in milliseconds
type JSONSummary struct {
	Batches       int64   `json:"batches"`
	TotalRequests int64   `json:"total_requests"`
	SuccessCount  int64   `json:"success_count"`
	FailureCount  int64   `json:"failure_count"`
	ErrorRate     float64 `json:"error_rate"`
	MinDurationMs float64 `json:"min_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	P50DurationMs float64 `json:"p50_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
	P99DurationMs float64 `json:"p99_duration_ms"`
}

// JSONHost holds the numbers of one host
type JSONHost struct {
	Host          string  `json:"host"`
	TotalRequests int64   `json:"total_requests"`
	FailureCount  int64   `json:"failure_count"`
	ReusedCount   int64   `json:"reused_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	P50DurationMs float64 `json:"p50_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
}

// Export writes the summary to the file and writer, whichever are set
func (j *JSONExporter) Export(s *stats.Summary) error {
	endTime := time.Now()

	output := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: endTime.Format(time.RFC3339),
			StartTime:   j.startTime.Format(time.RFC3339),
			Duration:    s.Duration.String(),
		},
		Summary: JSONSummary{
			Batches:       s.Batches,
			TotalRequests: s.Requests,
			SuccessCount:  s.SuccessCount,
			FailureCount:  s.ErrorCount,
			ErrorRate:     s.ErrorRate,
			MinDurationMs: ms(s.Min),
			MaxDurationMs: ms(s.Max),
			AvgDurationMs: ms(s.Mean),
			P50DurationMs: ms(s.P50),
			P95DurationMs: ms(s.P95),
			P99DurationMs: ms(s.P99),
		},
	}
	for _, h := range s.Hosts {
		output.Hosts = append(output.Hosts, JSONHost{
			Host:          h.Host,
			TotalRequests: h.Requests,
			FailureCount:  h.Errors,
			ReusedCount:   h.Reused,
			AvgDurationMs: ms(h.Mean),
			P50DurationMs: ms(h.P50),
			P95DurationMs: ms(h.P95),
		})
	}

	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(output, "", "  ")
	} else {
		data, err = json.Marshal(output)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	if j.writer != nil {
		if _, err := j.writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return nil
}

// Close closes the JSON exporter
func (j *JSONExporter) Close() error {
	return nil
}
