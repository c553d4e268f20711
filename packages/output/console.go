package output

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/inspect"
	"github.com/abdul-hamid-achik/hitmux/packages/stats"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := inspect.Format(v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *Result) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Batch: "+result.Source))

	var ok, failed, dropped int
	for i := 0; i < result.Count(); i++ {
		name := fmt.Sprintf("[%d] %s", i, result.Label(i))

		if msg, isFailure := result.Failures[i]; isFailure {
			failed++
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), name, red(msg))
			continue
		}

		resp := result.response(i)
		if resp == nil {
			dropped++
			fmt.Fprintf(f.writer, "  %s %s %s\n", yellow("-"), name, yellow("(not returned)"))
			continue
		}

		schemaErr := result.schemaError(i)
		symbol := green("✓")
		if schemaErr != nil {
			symbol = red("✗")
			failed++
		} else {
			ok++
		}

		status := fmt.Sprintf("%d", resp.StatusCode)
		switch {
		case resp.IsClientError(), resp.IsServerError():
			status = red(status)
		case resp.IsRedirect():
			status = yellow(status)
		}

		fmt.Fprintf(f.writer, "  %s %s %s %s", symbol, name, status, cyan(fmt.Sprintf("(%dms)", resp.DurationMs())))
		if resp.Reused {
			fmt.Fprintf(f.writer, " %s", yellow("reused"))
		}
		fmt.Fprintf(f.writer, "\n")

		if schemaErr != nil {
			fmt.Fprintf(f.writer, "    %s %v\n", red("→"), schemaErr)
		}

		extracts := result.extracts(i)
		keys := make([]string, 0, len(extracts))
		for k := range extracts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(f.writer, "    %s = %s\n", k, formatValue(extracts[k], 100))
		}

		if f.verbose {
			fmt.Fprintf(f.writer, "    %s %d %s\n", resp.Proto, resp.StatusCode, http.StatusText(resp.StatusCode))
			if resp.Headers != nil {
				for _, k := range resp.Headers.Keys() {
					fmt.Fprintf(f.writer, "    %s: %s\n", k, resp.Headers.Get(k))
				}
			}
			if resp.Body != nil {
				fmt.Fprintf(f.writer, "    %s\n", formatValue(resp.BodyString(), 500))
			}
		}
	}

	if result.Err != nil && len(result.Failures) == 0 {
		fmt.Fprintf(f.writer, "\n  %s %v\n", red("Error:"), result.Err)
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Requests: ")
	if ok > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d ok", ok)))
	}
	if failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	if dropped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d not returned", dropped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", result.Count())
	fmt.Fprintf(f.writer, "Time:     %dms\n", result.Duration.Milliseconds())
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatStats(s *stats.Summary) {
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	ms := func(d time.Duration) string {
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	}

	fmt.Fprintf(f.writer, "%s\n", bold("Statistics"))
	fmt.Fprintf(f.writer, "  Batches:  %d\n", s.Batches)
	fmt.Fprintf(f.writer, "  Requests: %d (%d ok", s.Requests, s.SuccessCount)
	if s.ErrorCount > 0 {
		fmt.Fprintf(f.writer, ", %s", red(fmt.Sprintf("%d failed, %.1f%%", s.ErrorCount, s.ErrorRate*100)))
	}
	fmt.Fprintf(f.writer, ")\n")
	fmt.Fprintf(f.writer, "  Latency:  min %s, mean %s, max %s, stddev %s\n", ms(s.Min), ms(s.Mean), ms(s.Max), ms(s.StdDev))
	fmt.Fprintf(f.writer, "            p50 %s, p95 %s, p99 %s\n", ms(s.P50), ms(s.P95), ms(s.P99))

	for _, h := range s.Hosts {
		fmt.Fprintf(f.writer, "  %s: %d requests, %d reused, %d failed, p50 %s, p95 %s\n",
			h.Host, h.Requests, h.Reused, h.Errors, ms(h.P50), ms(h.P95))
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hitmux"), version)
}
