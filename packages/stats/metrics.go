// Package stats summarizes the latency of executed batches.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics collects per-request latencies across one or more batches
type Metrics struct {
	mu sync.Mutex

	total   int64
	success int64
	errors  int64
	batches int64

	// Latency histogram (in microseconds for precision)
	histogram *hdrhistogram.Histogram

	hosts map[string]*hostMetrics

	startTime time.Time
	endTime   time.Time
}

type hostMetrics struct {
	total     int64
	errors    int64
	reused    int64
	histogram *hdrhistogram.Histogram
}

// Sample is one finished request
type Sample struct {
	Host     string
	Duration time.Duration
	Failed   bool
	Reused   bool
}

// NewMetrics creates a new Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		// Histogram: 1us to 60s range, 3 significant digits
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		hosts:     make(map[string]*hostMetrics),
	}
}

// Start marks the beginning of measurement
func (m *Metrics) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTime = time.Now()
	m.endTime = time.Time{}
}

// Stop marks the end of measurement
func (m *Metrics) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endTime = time.Now()
}

// RecordBatch records every sample of one executed batch
func (m *Metrics) RecordBatch(samples []Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches++
	for _, s := range samples {
		m.record(s)
	}
}

func (m *Metrics) record(s Sample) {
	m.total++
	if s.Failed {
		m.errors++
	} else {
		m.success++
	}

	latencyUs := clamp(s.Duration.Microseconds())
	_ = m.histogram.RecordValue(latencyUs)

	hm, ok := m.hosts[s.Host]
	if !ok {
		hm = &hostMetrics{histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3)}
		m.hosts[s.Host] = hm
	}
	hm.total++
	if s.Failed {
		hm.errors++
	}
	if s.Reused {
		hm.reused++
	}
	_ = hm.histogram.RecordValue(latencyUs)
}

func clamp(us int64) int64 {
	if us < minLatencyUs {
		return minLatencyUs
	}
	if us > maxLatencyUs {
		return maxLatencyUs
	}
	return us
}

// Summary is the aggregated view of all recorded batches
type Summary struct {
	Duration     time.Duration
	Batches      int64
	Requests     int64
	SuccessCount int64
	ErrorCount   int64
	ErrorRate    float64

	// Latency percentiles
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration

	Hosts []HostSummary
}

// HostSummary holds the latency of requests to one host
type HostSummary struct {
	Host     string
	Requests int64
	Errors   int64
	Reused   int64
	P50      time.Duration
	P95      time.Duration
	Mean     time.Duration
}

// Summary returns the metrics summary, hosts sorted by name
func (m *Metrics) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	errorRate := float64(0)
	if m.total > 0 {
		errorRate = float64(m.errors) / float64(m.total)
	}

	summary := &Summary{
		Duration:     duration,
		Batches:      m.batches,
		Requests:     m.total,
		SuccessCount: m.success,
		ErrorCount:   m.errors,
		ErrorRate:    errorRate,
		P50:          us(m.histogram.ValueAtQuantile(50)),
		P95:          us(m.histogram.ValueAtQuantile(95)),
		P99:          us(m.histogram.ValueAtQuantile(99)),
		Min:          us(m.histogram.Min()),
		Max:          us(m.histogram.Max()),
		Mean:         time.Duration(m.histogram.Mean()) * time.Microsecond,
		StdDev:       time.Duration(m.histogram.StdDev()) * time.Microsecond,
	}

	for host, hm := range m.hosts {
		summary.Hosts = append(summary.Hosts, HostSummary{
			Host:     host,
			Requests: hm.total,
			Errors:   hm.errors,
			Reused:   hm.reused,
			P50:      us(hm.histogram.ValueAtQuantile(50)),
			P95:      us(hm.histogram.ValueAtQuantile(95)),
			Mean:     time.Duration(hm.histogram.Mean()) * time.Microsecond,
		})
	}
	sort.Slice(summary.Hosts, func(i, j int) bool { return summary.Hosts[i].Host < summary.Hosts[j].Host })

	return summary
}

func us(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
