package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lifeforge"

// RAGMetrics observes retrieval, ingestion and the resilience layer. It is
// shared by the api and worker registries.
type RAGMetrics struct {
	service string

	queriesTotal       *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	ingestTotal        *prometheus.CounterVec
	ingestDuration     *prometheus.HistogramVec
	slotChunks         *prometheus.GaugeVec
	embedCacheTotal    *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

func newRAGMetrics(service string) *RAGMetrics {
	return &RAGMetrics{
		service: service,
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "queries_total",
				Help:      "Total answered queries by retrieval mode and guardrail outcome.",
			},
			[]string{"service", "mode", "rejected", "hallucination"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "query_duration_seconds",
				Help:      "Query duration in seconds including generation.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "mode"},
		),
		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "replacements_total",
				Help:      "Total slot replacements by status.",
			},
			[]string{"service", "status"},
		),
		ingestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Slot replacement duration in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"service"},
		),
		slotChunks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "slot_chunks",
				Help:      "Chunks in the active snapshot of each slot.",
			},
			[]string{"service", "slot"},
		),
		embedCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embed_cache",
				Name:      "lookups_total",
				Help:      "Embedding cache lookups by result.",
			},
			[]string{"service", "result"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Retries of outbound calls by operation.",
			},
			[]string{"service", "operation"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state changes by operation.",
			},
			[]string{"service", "operation", "from", "to"},
		),
	}
}

func (m *RAGMetrics) register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.queriesTotal,
		m.queryDuration,
		m.ingestTotal,
		m.ingestDuration,
		m.slotChunks,
		m.embedCacheTotal,
		m.retriesTotal,
		m.breakerTransitions,
	)
}

func (m *RAGMetrics) ObserveQuery(mode string, rejected, hallucination bool, seconds float64) {
	if mode == "" {
		mode = "unknown"
	}
	m.queriesTotal.WithLabelValues(m.service, mode, strconv.FormatBool(rejected), strconv.FormatBool(hallucination)).Inc()
	m.queryDuration.WithLabelValues(m.service, mode).Observe(seconds)
}

func (m *RAGMetrics) ObserveIngest(slot string, numChunks int, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ingestTotal.WithLabelValues(m.service, status).Inc()
	m.ingestDuration.WithLabelValues(m.service).Observe(seconds)
	if success {
		m.slotChunks.WithLabelValues(m.service, slot).Set(float64(numChunks))
	}
}

func (m *RAGMetrics) ObserveEmbedCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.embedCacheTotal.WithLabelValues(m.service, result).Inc()
}

func (m *RAGMetrics) OnRetry(operation string, _ int) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *RAGMetrics) OnBreakerStateChange(operation, from, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, from, to).Inc()
}
