// Package metrics implements the Telemetry port with Prometheus collectors
// registered on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/gitlicense/internal/domain/model"
	"github.com/ericfisherdev/gitlicense/internal/domain/port/driven"
)

const namespace = "gitlicense"

// Compile-time interface satisfaction check.
var _ driven.Telemetry = (*Recorder)(nil)

// Recorder counts license verdicts and registry write contention.
type Recorder struct {
	registry *prometheus.Registry

	verdicts          *prometheus.CounterVec
	conflicts         *prometheus.CounterVec
	concurrentFailure *prometheus.CounterVec
	corrupt           prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "License checks by verdict.",
		}, []string{"verdict"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cas_conflicts_total",
			Help:      "Registry writes rejected because the document changed underneath.",
		}, []string{"op"}),
		concurrentFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrent_update_failures_total",
			Help:      "Operations abandoned after exhausting their write attempts.",
		}, []string{"op"}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrupt_documents_total",
			Help:      "Registry loads that found undecodable content.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.verdicts,
		r.conflicts,
		r.concurrentFailure,
		r.corrupt,
	)

	// Pre-create verdict series so dashboards see zeros before the first check.
	for _, v := range []model.Verdict{
		model.VerdictValid,
		model.VerdictNotFound,
		model.VerdictRevoked,
		model.VerdictMachineMismatch,
		model.VerdictExpired,
	} {
		r.verdicts.WithLabelValues(string(v))
	}

	return r
}

// VerdictIssued implements driven.Telemetry.
func (r *Recorder) VerdictIssued(v model.Verdict) {
	r.verdicts.WithLabelValues(string(v)).Inc()
}

// VersionConflict implements driven.Telemetry.
func (r *Recorder) VersionConflict(op string) {
	r.conflicts.WithLabelValues(op).Inc()
}

// ConcurrentUpdateFailed implements driven.Telemetry.
func (r *Recorder) ConcurrentUpdateFailed(op string) {
	r.concurrentFailure.WithLabelValues(op).Inc()
}

// CorruptDocument implements driven.Telemetry.
func (r *Recorder) CorruptDocument() {
	r.corrupt.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
