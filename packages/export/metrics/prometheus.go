package metrics

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/stats"
)

// PrometheusExporter exports metrics in Prometheus text format
type PrometheusExporter struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
	now    func() time.Time
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Prometheus metrics
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

func withCloser(c io.Closer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.closer = c
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{
		writer: io.Discard,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Export writes the summary
func (p *PrometheusExporter) Export(s *stats.Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	writeMetrics(&b, s, p.now().UnixMilli())
	_, err := io.WriteString(p.writer, b.String())
	return err
}

func writeMetrics(w io.Writer, s *stats.Summary, now int64) {
	fmt.Fprintf(w, "# HELP hitmux_batches_total Total number of executed batches\n")
	fmt.Fprintf(w, "# TYPE hitmux_batches_total counter\n")
	fmt.Fprintf(w, "hitmux_batches_total %d %d\n", s.Batches, now)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP hitmux_requests_total Total number of HTTP requests made\n")
	fmt.Fprintf(w, "# TYPE hitmux_requests_total counter\n")
	fmt.Fprintf(w, "hitmux_requests_total %d %d\n", s.Requests, now)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP hitmux_requests_failed_total Total number of failed requests\n")
	fmt.Fprintf(w, "# TYPE hitmux_requests_failed_total counter\n")
	fmt.Fprintf(w, "hitmux_requests_failed_total %d %d\n", s.ErrorCount, now)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP hitmux_request_duration_ms Request duration in milliseconds\n")
	fmt.Fprintf(w, "# TYPE hitmux_request_duration_ms summary\n")
	fmt.Fprintf(w, "hitmux_request_duration_ms{quantile=\"0.5\"} %.3f %d\n", ms(s.P50), now)
	fmt.Fprintf(w, "hitmux_request_duration_ms{quantile=\"0.95\"} %.3f %d\n", ms(s.P95), now)
	fmt.Fprintf(w, "hitmux_request_duration_ms{quantile=\"0.99\"} %.3f %d\n", ms(s.P99), now)
	fmt.Fprintf(w, "hitmux_request_duration_ms_count %d %d\n", s.Requests, now)
	fmt.Fprintln(w)

	if len(s.Hosts) == 0 {
		return
	}

	fmt.Fprintf(w, "# HELP hitmux_host_requests_total Requests per host\n")
	fmt.Fprintf(w, "# TYPE hitmux_host_requests_total counter\n")
	for _, h := range s.Hosts {
		fmt.Fprintf(w, "hitmux_host_requests_total{host=\"%s\"} %d %d\n", sanitizeLabel(h.Host), h.Requests, now)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP hitmux_host_connections_reused_total Requests per host that reused a connection\n")
	fmt.Fprintf(w, "# TYPE hitmux_host_connections_reused_total counter\n")
	for _, h := range s.Hosts {
		fmt.Fprintf(w, "hitmux_host_connections_reused_total{host=\"%s\"} %d %d\n", sanitizeLabel(h.Host), h.Reused, now)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP hitmux_host_duration_p95_ms 95th percentile request duration per host\n")
	fmt.Fprintf(w, "# TYPE hitmux_host_duration_p95_ms gauge\n")
	for _, h := range s.Hosts {
		fmt.Fprintf(w, "hitmux_host_duration_p95_ms{host=\"%s\"} %.3f %d\n", sanitizeLabel(h.Host), ms(h.P95), now)
	}
}

// sanitizeLabel makes a string safe for use as a Prometheus label value
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Close closes the underlying file, if the exporter owns one
func (p *PrometheusExporter) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
