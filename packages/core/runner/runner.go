package runner

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/core/batch"
	"github.com/abdul-hamid-achik/hitmux/packages/core/config"
	"github.com/abdul-hamid-achik/hitmux/packages/inspect"
	"github.com/abdul-hamid-achik/hitmux/packages/mux"
	"github.com/abdul-hamid-achik/hitmux/packages/output"
	"github.com/abdul-hamid-achik/hitmux/packages/response"
	"github.com/abdul-hamid-achik/hitmux/packages/stats"
	"github.com/abdul-hamid-achik/hitmux/packages/transport"
	"github.com/rs/zerolog"
)

type Runner struct {
	ctx     *mux.Context
	share   transport.Share
	config  *Config
	metrics *stats.Metrics
}

type Config struct {
	App    *config.Config
	Logger zerolog.Logger
	// Transport replaces the net/http transport, mostly for tests.
	Transport transport.Transport
	// ShareCookies adds cookie sharing on top of the configured share.
	ShareCookies bool
	// Trace receives per-handle connection diagnostics when set.
	Trace   io.Writer
	Extract []string
	Schema  *inspect.Schema
}

// NewRunner builds the context described by cfg. Engine options the
// transport rejects surface as a *mux.ConfigurationError.
func NewRunner(cfg *Config) (*Runner, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.App == nil {
		cfg.App = config.DefaultConfig()
	}

	ctxOpts := []mux.Option{
		mux.WithLogger(cfg.Logger),
		mux.WithWaitTimeout(cfg.App.GetWaitTimeout()),
	}
	if cfg.Transport != nil {
		ctxOpts = append(ctxOpts, mux.WithTransport(cfg.Transport))
	}
	ctx := mux.New(ctxOpts...)

	engine, err := cfg.App.EngineOptions()
	if err != nil {
		_ = ctx.Close()
		return nil, &mux.ConfigurationError{Op: "read engine config", Err: err}
	}
	if err := ctx.SetEngineOptions(engine); err != nil {
		_ = ctx.Close()
		return nil, err
	}

	defaults := cfg.App.DefaultOptions()
	if cfg.Trace != nil {
		defaults[transport.OptVerbose] = true
		defaults[transport.OptStderr] = cfg.Trace
	}
	ctx.SetDefaults(defaults)

	r := &Runner{
		ctx:     ctx,
		config:  cfg,
		metrics: stats.NewMetrics(),
	}

	settings := cfg.App.ShareSettings()
	if cfg.ShareCookies {
		if settings == nil {
			settings = transport.ShareSettings{}
		}
		settings[transport.LockDataCookie] = transport.ShareLock
	}
	if settings != nil {
		share, err := ctx.Share(settings)
		if err != nil {
			_ = ctx.Close()
			return nil, err
		}
		r.share = share
	}

	r.metrics.Start()
	return r, nil
}

// Metrics returns the collector every batch is recorded in.
func (r *Runner) Metrics() *stats.Metrics {
	return r.metrics
}

// RunBatch executes f once. Execution failures are reported in the
// result; the error is only set when f cannot be turned into requests.
func (r *Runner) RunBatch(source string, f *batch.File) (*output.Result, error) {
	optionSets, err := f.Options(r.share)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(f.Requests))
	for i, req := range f.Requests {
		labels[i] = req.Label()
	}

	start := time.Now()
	handles, execErr := r.ctx.Execute(optionSets)
	elapsed := time.Since(start)

	responses := response.FromHandles(handles)
	for _, h := range handles {
		_ = h.Close()
	}

	result := output.NewResult(source, labels, responses, execErr, elapsed)
	r.inspect(result)
	r.metrics.RecordBatch(samples(result, optionSets))

	return result, nil
}

// Run executes f repeat times, stopping after the first batch that aborted.
func (r *Runner) Run(source string, f *batch.File, repeat int) ([]*output.Result, error) {
	if repeat < 1 {
		repeat = 1
	}

	results := make([]*output.Result, 0, repeat)
	for i := 0; i < repeat; i++ {
		name := source
		if repeat > 1 {
			name = fmt.Sprintf("%s #%d", source, i+1)
		}

		result, err := r.RunBatch(name, f)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		var fatal *mux.FatalError
		if errors.As(result.Err, &fatal) || errors.Is(result.Err, mux.ErrClosed) {
			break
		}
	}
	return results, nil
}

// Close releases the share and the context.
func (r *Runner) Close() error {
	r.metrics.Stop()
	if r.share != nil {
		_ = r.share.Close()
	}
	return r.ctx.Close()
}

func (r *Runner) inspect(result *output.Result) {
	if len(result.Responses) == 0 {
		return
	}

	if len(r.config.Extract) > 0 {
		result.Extracts = make([]map[string]any, len(result.Responses))
		for i, resp := range result.Responses {
			result.Extracts[i] = inspect.ExtractAll(resp, r.config.Extract)
		}
	}

	if r.config.Schema != nil {
		result.SchemaErrors = make([]error, len(result.Responses))
		for i, resp := range result.Responses {
			result.SchemaErrors[i] = r.config.Schema.Validate(resp.Body)
		}
	}
}

// samples turns a result into stats samples. Requests a failed batch did
// not return are left out since nothing was measured for them.
func samples(result *output.Result, optionSets []transport.Options) []stats.Sample {
	out := make([]stats.Sample, 0, len(optionSets))
	for _, resp := range result.Responses {
		out = append(out, stats.Sample{
			Host:     hostOf(resp.URL),
			Duration: resp.Duration,
			Reused:   resp.Reused,
		})
	}
	for i := range result.Failures {
		target, _ := optionSets[i][transport.OptURL].(string)
		out = append(out, stats.Sample{Host: hostOf(target), Failed: true})
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
