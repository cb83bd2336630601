// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"

	"rag-chat/internal/models"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements the recorder interfaces of the services package
type Metrics struct {
	registry *prom.Registry

	retrievals        *prom.CounterVec
	suppressedMatches prom.Counter
	checkFailures     prom.Counter
	upsertBatches     *prom.CounterVec
	upsertedVectors   prom.Counter
	relationWrites    *prom.CounterVec
}

// New registers the counters on a private registry
func New() *Metrics {
	registry := prom.NewRegistry()
	m := &Metrics{
		registry: registry,
		retrievals: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "rag",
			Name:      "retrievals_total",
			Help:      "Context retrievals by outcome.",
		}, []string{"outcome"}),
		suppressedMatches: prom.NewCounter(prom.CounterOpts{
			Namespace: "rag",
			Name:      "suppressed_matches_total",
			Help:      "Score-qualified matches removed by the permission filter.",
		}),
		checkFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: "rag",
			Name:      "permission_check_failures_total",
			Help:      "Permission checks that errored or timed out and were treated as denied.",
		}),
		upsertBatches: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "rag",
			Name:      "upsert_batches_total",
			Help:      "Vector upsert batches by result.",
		}, []string{"result"}),
		upsertedVectors: prom.NewCounter(prom.CounterOpts{
			Namespace: "rag",
			Name:      "upserted_vectors_total",
			Help:      "Vectors written to the index.",
		}),
		relationWrites: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "rag",
			Name:      "relation_writes_total",
			Help:      "Directory relation operations by op code.",
		}, []string{"op"}),
	}
	registry.MustRegister(
		m.retrievals,
		m.suppressedMatches,
		m.checkFailures,
		m.upsertBatches,
		m.upsertedVectors,
		m.relationWrites,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Retrieval(outcome string) {
	m.retrievals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MatchesSuppressed(count int) {
	m.suppressedMatches.Add(float64(count))
}

func (m *Metrics) PermissionCheckFailed() {
	m.checkFailures.Inc()
}

func (m *Metrics) UpsertBatch(_ string, size int, err error) {
	if err != nil {
		m.upsertBatches.WithLabelValues("error").Inc()
		return
	}
	m.upsertBatches.WithLabelValues("ok").Inc()
	m.upsertedVectors.Add(float64(size))
}

func (m *Metrics) RelationsWritten(op models.ImportOpCode, count int) {
	m.relationWrites.WithLabelValues(op.String()).Add(float64(count))
}

// Handler serves the registry at /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests
func (m *Metrics) Registry() *prom.Registry {
	return m.registry
}
