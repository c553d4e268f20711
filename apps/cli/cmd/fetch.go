package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/core/batch"
	"github.com/abdul-hamid-achik/hitmux/packages/core/config"
	"github.com/abdul-hamid-achik/hitmux/packages/core/env"
	"github.com/abdul-hamid-achik/hitmux/packages/core/runner"
	"github.com/abdul-hamid-achik/hitmux/packages/export/metrics"
	"github.com/abdul-hamid-achik/hitmux/packages/inspect"
	"github.com/abdul-hamid-achik/hitmux/packages/logging"
	"github.com/abdul-hamid-achik/hitmux/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Send a batch of requests concurrently",
	Long: `Send URLs given as arguments, or the requests of batch files, as one
concurrent batch. Responses are reported in input order. If any request
fails the batch fails as a whole and every failed request is listed.

Examples:
  hitmux fetch http://localhost:1080/sleep?ms=200 http://localhost:1080/print?content=hi
  hitmux fetch -f batch.yaml --var base=http://localhost:1080
  hitmux fetch -f batch.yaml --extract body.id --extract header.Content-Type
  hitmux fetch -f batch.yaml --schema user.schema.json -o json
  hitmux fetch -f batch.yaml --repeat 10 --stats --pipelining multiplex
  hitmux fetch -f batch.yaml --watch`,
	RunE: fetchCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	fileFlags       []string
	varFlags        []string
	envFileFlag     string
	configFlag      string
	outputFlag      string
	outputFileFlag  string
	jsonFlag        bool
	verboseFlag     bool
	noColorFlag     bool
	traceFlag       bool
	logLevelFlag    string
	extractFlags    []string
	schemaFlag      string
	statsFlag       bool
	repeatFlag      int
	watchFlag       bool
	pipeliningFlag  string
	rateFlag        float64
	maxHostFlag     int
	cookiesFlag     bool
	timeoutFlag     string
	insecureFlag    bool
	waitTimeoutFlag string
	metricsFlag     string
	metricsFileFlag string
)

func init() {
	// Input flags
	fetchCmd.Flags().StringArrayVarP(&fileFlags, "file", "f", nil, "Batch file to run (repeatable)")
	fetchCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a batch variable, name=value (repeatable)")
	fetchCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("HITMUX_ENV_FILE", ""), "Path to .env file for {{$NAME}} placeholders (env: HITMUX_ENV_FILE)")
	fetchCmd.Flags().StringVar(&configFlag, "config", getEnvString("HITMUX_CONFIG", ""), "Path to config file (env: HITMUX_CONFIG)")

	// Output flags
	fetchCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("HITMUX_OUTPUT", "console"), "Output format: console, json, tap (env: HITMUX_OUTPUT)")
	fetchCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("HITMUX_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITMUX_OUTPUT_FILE)")
	fetchCmd.Flags().BoolVar(&jsonFlag, "json", false, "Shorthand for --output json")
	fetchCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Print response headers and bodies")
	fetchCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("HITMUX_NO_COLOR", false), "Disable colored output (env: HITMUX_NO_COLOR)")
	fetchCmd.Flags().BoolVar(&traceFlag, "trace", false, "Write per-request connection diagnostics to stderr")
	fetchCmd.Flags().StringVar(&logLevelFlag, "log-level", getEnvString("HITMUX_LOG_LEVEL", ""), "Log level: debug, info, warn, error, off (env: HITMUX_LOG_LEVEL)")

	// Inspection flags
	fetchCmd.Flags().StringArrayVar(&extractFlags, "extract", nil, "Extract a value from each response, e.g. body.id or header.Content-Type (repeatable)")
	fetchCmd.Flags().StringVar(&schemaFlag, "schema", "", "Validate every response body against a JSON Schema file")
	fetchCmd.Flags().BoolVar(&statsFlag, "stats", false, "Print latency statistics")
	fetchCmd.Flags().StringVar(&metricsFlag, "metrics", getEnvString("HITMUX_METRICS", ""), "Export statistics: prometheus, json (env: HITMUX_METRICS)")
	fetchCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", getEnvString("HITMUX_METRICS_FILE", ""), "File the exported statistics are written to (env: HITMUX_METRICS_FILE)")

	// Execution flags
	fetchCmd.Flags().IntVarP(&repeatFlag, "repeat", "n", 1, "Run each batch this many times")
	fetchCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch batch files for changes and re-run them")
	fetchCmd.Flags().StringVar(&pipeliningFlag, "pipelining", getEnvString("HITMUX_PIPELINING", ""), "Connection sharing: off, http1, multiplex (env: HITMUX_PIPELINING)")
	fetchCmd.Flags().Float64Var(&rateFlag, "rate", 0, "Start at most this many requests per second")
	fetchCmd.Flags().IntVar(&maxHostFlag, "max-host-connections", 0, "Limit connections per host")
	fetchCmd.Flags().BoolVar(&cookiesFlag, "cookies", getEnvBool("HITMUX_COOKIES", false), "Share cookies between requests and batches (env: HITMUX_COOKIES)")
	fetchCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("HITMUX_TIMEOUT", ""), "Request timeout (e.g., 30s, 500ms) (env: HITMUX_TIMEOUT)")
	fetchCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("HITMUX_INSECURE", false), "Disable SSL certificate validation (env: HITMUX_INSECURE)")
	fetchCmd.Flags().StringVar(&waitTimeoutFlag, "wait-timeout", "", "Liveness timeout of one wait for progress (e.g., 1s)")
}

// source is one batch to run and where it came from.
type source struct {
	name string
	path string
	file *batch.File
}

func fetchCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(fileFlags) == 0 {
		return exitWith(ExitUsageError, errors.New("give at least one URL or --file"))
	}
	if watchFlag && len(fileFlags) == 0 {
		return exitWith(ExitUsageError, errors.New("--watch needs at least one --file"))
	}

	cfg, err := loadFetchConfig(cmd)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	logger, err := logging.NewConsole(cfg.LogLevel, cmd.ErrOrStderr(), cfg.GetNoColor())
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	// Setup output writer
	var outWriter io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		outWriter = f
	}

	format := strings.ToLower(outputFlag)
	if jsonFlag {
		format = "json"
	}
	newFormatter := func() output.Formatter {
		switch format {
		case "json":
			return output.NewJSONFormatter(output.JSONWithWriter(outWriter))
		case "tap":
			return output.NewTAPFormatter(output.TAPWithWriter(outWriter))
		default: // "console"
			return output.NewConsoleFormatter(
				output.WithWriter(outWriter),
				output.WithVerbose(verboseFlag),
				output.WithNoColor(cfg.GetNoColor()),
			)
		}
	}

	resolver, err := newResolver(logger)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	var metricsFormat metrics.Format
	if metricsFlag != "" {
		if metricsFileFlag == "" {
			return exitWith(ExitUsageError, errors.New("--metrics needs --metrics-file"))
		}
		metricsFormat, err = metrics.ParseFormat(metricsFlag)
		if err != nil {
			return exitWith(ExitUsageError, err)
		}
	}

	var schema *inspect.Schema
	if schemaFlag != "" {
		schema, err = inspect.LoadSchema(schemaFlag)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
	}

	runCfg := &runner.Config{
		App:          cfg,
		Logger:       logger,
		ShareCookies: cookiesFlag,
		Extract:      extractFlags,
		Schema:       schema,
	}
	if traceFlag {
		runCfg.Trace = cmd.ErrOrStderr()
	}

	r, err := runner.NewRunner(runCfg)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	defer r.Close()

	sources, err := loadSources(args, resolver)
	if err != nil {
		return exitWith(ExitParseError, err)
	}

	formatter := newFormatter()
	formatter.FormatHeader(version)

	failed, err := runSources(r, sources, formatter)
	if err != nil {
		return err
	}
	if err := exportMetrics(r, metricsFormat); err != nil {
		return err
	}

	if !watchFlag {
		if failed != nil {
			return &ExitError{Code: exitCode(failed), Err: failed, Silent: true}
		}
		return nil
	}

	return watchAndRun(cmd, r, sources, resolver, newFormatter, metricsFormat, logger)
}

// exportMetrics writes the statistics of every batch run so far.
func exportMetrics(r *runner.Runner, format metrics.Format) error {
	if format == "" {
		return nil
	}

	exp, err := metrics.NewFileExporter(format, metricsFileFlag)
	if err != nil {
		return err
	}
	defer exp.Close()

	return metrics.ExportTo(r.Metrics().Summary(), exp)
}

// loadFetchConfig reads the config file and applies flag overrides.
func loadFetchConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}

	overrides := &config.Config{LogLevel: logLevelFlag}
	flags := cmd.Flags()

	if pipeliningFlag != "" {
		overrides.Engine.Pipelining = pipeliningFlag
	}
	if rateFlag > 0 {
		overrides.Engine.RequestRate = rateFlag
	}
	if maxHostFlag > 0 {
		overrides.Engine.MaxHostConnections = maxHostFlag
	}
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		overrides.Defaults.Timeout = int(d.Milliseconds())
	}
	if waitTimeoutFlag != "" {
		d, err := time.ParseDuration(waitTimeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid wait timeout value %q: %w", waitTimeoutFlag, err)
		}
		overrides.WaitTimeout = int(d.Milliseconds())
	}
	if insecureFlag || flags.Changed("insecure") {
		overrides.Defaults.Insecure = config.BoolPtr(insecureFlag)
	}
	if noColorFlag || flags.Changed("no-color") {
		overrides.NoColor = config.BoolPtr(noColorFlag)
	}

	merged := cfg.Merge(overrides)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func newResolver(logger zerolog.Logger) (*env.Resolver, error) {
	resolver := env.NewResolver()
	resolver.SetWarnFunc(func(format string, args ...any) {
		logger.Warn().Msgf(format, args...)
	})

	if envFileFlag != "" {
		if err := resolver.LoadDotEnv(envFileFlag); err != nil {
			return nil, err
		}
	}

	for _, kv := range varFlags {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, expected name=value", kv)
		}
		resolver.SetOverride(name, value)
	}
	return resolver, nil
}

// loadSources parses every batch file, then the URL arguments as one more
// batch. Command line variables override variables declared in files.
func loadSources(urls []string, resolver *env.Resolver) ([]*source, error) {
	var sources []*source
	for _, path := range fileFlags {
		f, err := parseBatchFile(path, resolver)
		if err != nil {
			return nil, err
		}
		sources = append(sources, &source{name: path, path: path, file: f})
	}

	if len(urls) > 0 {
		resolved := make([]string, len(urls))
		for i, u := range urls {
			resolved[i] = resolver.Resolve(u)
		}
		sources = append(sources, &source{name: "cli", file: batch.FromURLs(resolved)})
	}
	return sources, nil
}

// parseBatchFile keeps each file's variables to itself.
func parseBatchFile(path string, resolver *env.Resolver) (*batch.File, error) {
	return batch.ParseFile(path, resolver.Clone())
}

// runSources runs every source and reports it. failure is the first batch
// that did not pass; err is only set when the output cannot be written.
func runSources(r *runner.Runner, sources []*source, formatter output.Formatter) (failure error, err error) {
	start := time.Now()
	var firstFailure error

	for _, src := range sources {
		results, err := r.Run(src.name, src.file, repeatFlag)
		if err != nil {
			formatter.FormatError(err)
			if firstFailure == nil {
				firstFailure = exitWith(ExitParseError, err)
			}
			continue
		}

		for _, result := range results {
			formatter.FormatResult(result)
			if firstFailure == nil && !result.Passed() {
				firstFailure = result.Err
				if firstFailure == nil {
					firstFailure = exitWith(ExitBatchFailure, errors.New("schema validation failed"))
				}
			}
		}
	}

	if statsFlag {
		formatter.FormatStats(r.Metrics().Summary())
	}

	if flushable, ok := formatter.(output.Flushable); ok {
		if err := flushable.Flush(time.Since(start)); err != nil {
			return nil, fmt.Errorf("error writing output: %w", err)
		}
	}

	return firstFailure, nil
}

func watchAndRun(cmd *cobra.Command, r *runner.Runner, sources []*source, resolver *env.Resolver, newFormatter func() output.Formatter, metricsFormat metrics.Format, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch directories, editors often replace files instead of writing them
	byPath := make(map[string]*source)
	watchedDirs := make(map[string]bool)
	for _, src := range sources {
		if src.path == "" {
			continue
		}
		abs, err := filepath.Abs(src.path)
		if err != nil {
			return err
		}
		byPath[abs] = src

		dir := filepath.Dir(abs)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce rapid events; reruns happen on this goroutine only since a
	// mux.Context runs one batch at a time.
	var debounceTimer *time.Timer
	changed := make(chan string, 1)
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := byPath[abs]; !watched {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			pending[abs] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case changed <- abs:
				default:
				}
			})

		case <-changed:
			var rerun []*source
			for path := range pending {
				src := byPath[path]
				f, err := parseBatchFile(src.path, resolver)
				if err != nil {
					logger.Error().Err(err).Str("file", src.path).Msg("cannot reload batch file")
					continue
				}
				src.file = f
				rerun = append(rerun, src)
			}
			pending = make(map[string]bool)

			if len(rerun) == 0 {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed, re-running %d batch(es)...\n\n", len(rerun))

			// Fresh formatter so JSON and TAP output start over
			if _, err := runSources(r, rerun, newFormatter()); err != nil {
				logger.Error().Err(err).Msg("re-run failed")
			}
			if err := exportMetrics(r, metricsFormat); err != nil {
				logger.Error().Err(err).Msg("cannot export metrics")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("watcher error")
		}
	}
}
