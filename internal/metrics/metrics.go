package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dvrflow"

// Recorder collects pipeline counters on a private registry. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	stageOutcomes *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	itemOutcomes  *prometheus.CounterVec
	failures      *prometheus.CounterVec
	bytesFetched  prometheus.Counter
	lastRun       prometheus.Gauge
}

// New registers the dvrflow collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_outcomes_total",
			Help:      "Pipeline stage outcomes by stage and result",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent running external stage tools",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		}, []string{"stage"}),
		itemOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Processed recordings by terminal status",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Item failures by stage and error kind",
		}, []string{"stage", "kind"}),
		bytesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes downloaded from the recording device",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last batch finished",
		}),
	}
	r.registry.MustRegister(r.stageOutcomes, r.stageDuration, r.itemOutcomes, r.failures, r.bytesFetched, r.lastRun)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// StageOutcome counts one stage result (ran, skipped, failed, bypassed).
func (r *Recorder) StageOutcome(stage, outcome string) {
	if r == nil {
		return
	}
	r.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// StageDuration observes how long a tool ran.
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	if r == nil || d <= 0 {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ItemOutcome counts one terminal item status.
func (r *Recorder) ItemOutcome(status string) {
	if r == nil {
		return
	}
	r.itemOutcomes.WithLabelValues(status).Inc()
}

// Failure counts a failed item by stage and error kind.
func (r *Recorder) Failure(stage, kind string) {
	if r == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	r.failures.WithLabelValues(stage, kind).Inc()
}

// BytesDownloaded adds n to the device download counter.
func (r *Recorder) BytesDownloaded(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.bytesFetched.Add(float64(n))
}

// RunFinished stamps the completion time of a batch.
func (r *Recorder) RunFinished(at time.Time) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in node-exporter textfile format.
// An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
