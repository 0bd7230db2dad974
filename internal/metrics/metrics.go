// Package metrics exposes Prometheus counters for the stores and the bridge.
// All methods are safe on a nil *Metrics so callers can run without them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stash"

type Metrics struct {
	reg *prometheus.Registry

	mutations     *prometheus.CounterVec
	persistErrors *prometheus.CounterVec
	undo          *prometheus.CounterVec
	enrichments   *prometheus.CounterVec
	feedRefreshes *prometheus.CounterVec
	vault         *prometheus.CounterVec
	bookmarks     prometheus.Gauge
}

// New registers every collector on a private registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Item store mutations by operation.",
		}, []string{"op"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed writes to the key-value backend by slot.",
		}, []string{"slot"}),
		undo: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_total",
			Help:      "Undo commands by outcome (applied, expired, swept).",
		}, []string{"outcome"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Metadata enrichment runs by outcome.",
		}, []string{"outcome"}),
		feedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_refreshes_total",
			Help:      "Feed refreshes by outcome.",
		}, []string{"outcome"}),
		vault: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_transitions_total",
			Help:      "Vault lifecycle transitions.",
		}, []string{"transition"}),
		bookmarks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bookmarks",
			Help:      "Bookmarks currently held by the item store.",
		}),
	}
	reg.MustRegister(
		m.mutations, m.persistErrors, m.undo, m.enrichments,
		m.feedRefreshes, m.vault, m.bookmarks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Mutation(op string) {
	if m != nil {
		m.mutations.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) PersistError(slot string) {
	if m != nil {
		m.persistErrors.WithLabelValues(slot).Inc()
	}
}

func (m *Metrics) Undo(outcome string) {
	if m != nil {
		m.undo.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) UndoSwept(n int) {
	if m != nil && n > 0 {
		m.undo.WithLabelValues("swept").Add(float64(n))
	}
}

func (m *Metrics) Enrichment(outcome string) {
	if m != nil {
		m.enrichments.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) FeedRefresh(outcome string) {
	if m != nil {
		m.feedRefreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) VaultTransition(t string) {
	if m != nil {
		m.vault.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) SetBookmarks(n int) {
	if m != nil {
		m.bookmarks.Set(float64(n))
	}
}
