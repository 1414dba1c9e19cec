// Package metrics records storage operation metrics in a private Prometheus
// registry. A CLI run is short-lived, so metrics are exported by writing a
// node-exporter textfile rather than serving /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/3leaps/storagekit/pkg/storage"
	"github.com/3leaps/storagekit/pkg/transfer"
)

// OutcomeOK labels operations that returned no error.
const OutcomeOK = "ok"

// Recorder implements storage.Observer.
type Recorder struct {
	provider string
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferObjects   *prometheus.CounterVec
	transferBytes     prometheus.Counter
}

var _ storage.Observer = (*Recorder)(nil)

// New returns a Recorder whose series carry the given provider label.
func New(provider string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		provider: provider,
		registry: reg,
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagekit_operations_total",
				Help: "Total number of storage operations by outcome",
			},
			[]string{"provider", "op", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storagekit_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "op"},
		),
		transferObjects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagekit_transfer_objects_total",
				Help: "Objects processed by batch transfers",
			},
			[]string{"provider", "status"},
		),
		transferBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "storagekit_transfer_bytes_total",
				Help:        "Bytes moved or copied by batch transfers",
				ConstLabels: prometheus.Labels{"provider": provider},
			},
		),
	}
}

// Observe records one completed operation.
func (r *Recorder) Observe(op string, kind storage.ErrorKind, elapsed time.Duration) {
	outcome := OutcomeOK
	if kind != "" {
		outcome = string(kind)
	}
	r.operationsTotal.WithLabelValues(r.provider, op, outcome).Inc()
	r.operationDuration.WithLabelValues(r.provider, op).Observe(elapsed.Seconds())
}

// RecordBatch adds a sync result to the transfer counters. Dry runs are
// ignored.
func (r *Recorder) RecordBatch(res *transfer.BatchResult) {
	if res == nil || res.DryRun {
		return
	}
	r.transferObjects.WithLabelValues(r.provider, "succeeded").Add(float64(len(res.Succeeded)))
	r.transferObjects.WithLabelValues(r.provider, "failed").Add(float64(len(res.Failed)))
	r.transferBytes.Add(float64(res.Bytes()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every series to path in the Prometheus text format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
