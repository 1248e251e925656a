// Package metrics records pipeline counters and exports them in the Prometheus
// text format for the node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "winmanifests"

// Recorder holds the metrics of one run. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	updatesTotal    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	bytesDownloaded prometheus.Counter
	manifestsTotal  prometheus.Counter
	inflight        prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		updatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Updates processed, by outcome",
			},
			[]string{"status"}, // OK, ERROR or SKIPPED
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent per pipeline stage",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage"}, // select, resolve, fetch, extract
		),
		bytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes of update packages downloaded",
		}),
		manifestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifests_extracted_total",
			Help:      "Manifest files left on disk after extraction",
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractions_inflight",
			Help:      "Extraction tasks currently running",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) UpdateFinished(status string) {
	if r == nil {
		return
	}
	r.updatesTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) AddBytes(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.bytesDownloaded.Add(float64(n))
}

func (r *Recorder) AddManifests(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.manifestsTotal.Add(float64(n))
}

// ExtractionStarted marks a running extraction; the returned func marks it done.
func (r *Recorder) ExtractionStarted() func() {
	if r == nil {
		return func() {}
	}
	r.inflight.Inc()
	return r.inflight.Dec
}

// WriteTextfile writes every recorded metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
