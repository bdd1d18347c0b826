package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Turn outcomes.
const (
	OutcomeAnswered      = "answered"
	OutcomeFallback      = "fallback"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeReplayed      = "replayed"
	OutcomeError         = "error"
)

var (
	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Chat turns by outcome.",
		},
		[]string{"outcome"},
	)

	llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Completion latency by provider and result kind.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "result"},
	)

	llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Tokens consumed by provider.",
		},
		[]string{"provider"},
	)

	sessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_expired_total",
			Help: "Active sessions marked timeout by the sweeper.",
		},
	)

	storageDegraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storage_backend_degraded",
			Help: "1 when the process runs on the in-memory fallback store.",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(chatTurns, llmLatency, llmTokens, sessionsExpired, storageDegraded)
}

// ObserveTurn counts one chat turn.
func ObserveTurn(outcome string) { chatTurns.WithLabelValues(outcome).Inc() }

// ObserveCompletion records one provider call. result is "ok" or an error kind.
func ObserveCompletion(provider, result string, d time.Duration, tokens int) {
	llmLatency.WithLabelValues(provider, result).Observe(d.Seconds())
	if tokens > 0 {
		llmTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

// ObserveExpired counts sessions expired by a sweep.
func ObserveExpired(n int64) {
	if n > 0 {
		sessionsExpired.Add(float64(n))
	}
}

// SetStorageBackend publishes the backend chosen at startup.
func SetStorageBackend(kind string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1
	}
	storageDegraded.Reset()
	storageDegraded.WithLabelValues(kind).Set(v)
}
