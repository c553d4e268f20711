// Package metrics exports hitmux batch statistics to files other tools read:
// the Prometheus text exposition format and JSON.
package metrics

import (
	"fmt"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/hitmux/packages/stats"
)

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export writes one summary to the target destination
	Export(summary *stats.Summary) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// Format names an export format
type Format string

const (
	FormatPrometheus Format = "prometheus"
	FormatJSON       Format = "json"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatPrometheus, "prom":
		return FormatPrometheus, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown metrics format: %s (use prometheus or json)", s)
}

// NewFileExporter returns an exporter of the given format writing to path.
func NewFileExporter(format Format, path string) (Exporter, error) {
	switch format {
	case FormatPrometheus:
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("cannot create metrics file: %w", err)
		}
		return NewPrometheusExporter(WithPrometheusWriter(f), withCloser(f)), nil
	case FormatJSON:
		return NewJSONExporter(WithJSONFile(path)), nil
	}
	return nil, fmt.Errorf("unknown metrics format: %s", format)
}

// ExportTo writes summary with every exporter, stopping at the first error.
func ExportTo(summary *stats.Summary, exporters ...Exporter) error {
	for _, exp := range exporters {
		if err := exp.Export(summary); err != nil {
			return err
		}
	}
	return nil
}
