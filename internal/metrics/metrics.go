package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	AttemptsTotal *prometheus.CounterVec
	RetriesTotal  *prometheus.CounterVec
	CircuitState  *prometheus.GaugeVec

	FallbackTotal    *prometheus.CounterVec
	GateResultsTotal *prometheus.CounterVec

	TranslationsTotal    *prometheus.CounterVec
	TranslationDuration  *prometheus.HistogramVec
	TranslationsInFlight prometheus.Gauge

	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	RateLimitWaitsTotal *prometheus.CounterVec
}

// New регистрирует метрики в reg; nil - глобальный регистр prometheus.
// В тестах удобно передавать prometheus.NewRegistry(), иначе повторная регистрация паникует.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_attempts_total",
				Help: "Total number of attempts against a dependency",
			},
			[]string{"dependency", "outcome"},
		),
		RetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_retries_total",
				Help: "Total number of scheduled retries by failure kind",
			},
			[]string{"dependency", "kind"},
		),
		CircuitState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "translation_circuit_state",
				Help: "Circuit breaker state per dependency (0 closed, 1 open, 2 half open)",
			},
			[]string{"dependency"},
		),

		FallbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_fallback_total",
				Help: "Fallback strategy outcomes",
			},
			[]string{"strategy", "outcome"},
		),
		GateResultsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_gate_results_total",
				Help: "Quality gate outcomes",
			},
			[]string{"gate", "outcome"},
		),

		TranslationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_requests_total",
				Help: "Total number of translation requests by final disposition",
			},
			[]string{"disposition"},
		),
		TranslationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "translation_duration_seconds",
				Help:    "Translation pipeline duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"disposition"},
		),
		TranslationsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "translation_requests_in_flight",
				Help: "Number of translation requests currently being processed",
			},
		),

		LLMRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_llm_requests_total",
				Help: "Total number of LLM API requests",
			},
			[]string{"provider", "status"},
		),
		LLMRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "translation_llm_request_duration_seconds",
				Help:    "LLM request duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "translation_cache_hits_total",
				Help: "Total number of result cache hits",
			},
		),
		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "translation_cache_misses_total",
				Help: "Total number of result cache misses",
			},
		),

		RateLimitWaitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_rate_limit_waits_total",
				Help: "Times a request waited on the client-side provider limiter",
			},
			[]string{"provider"},
		),
	}
}

// HandlerFor отдает метрики из конкретного регистра
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordAttempt(dependency, outcome string) {
	m.AttemptsTotal.WithLabelValues(dependency, outcome).Inc()
}

func (m *Metrics) RecordRetry(dependency, kind string) {
	m.RetriesTotal.WithLabelValues(dependency, kind).Inc()
}

func (m *Metrics) SetCircuitState(dependency string, state int) {
	m.CircuitState.WithLabelValues(dependency).Set(float64(state))
}

func (m *Metrics) RecordFallback(strategy, outcome string) {
	m.FallbackTotal.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) RecordGate(gate, outcome string) {
	m.GateResultsTotal.WithLabelValues(gate, outcome).Inc()
}

func (m *Metrics) RecordTranslation(disposition string, duration time.Duration) {
	m.TranslationsTotal.WithLabelValues(disposition).Inc()
	m.TranslationDuration.WithLabelValues(disposition).Observe(duration.Seconds())
}

func (m *Metrics) RecordLLMRequest(provider, status string, duration time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) RecordRateLimitWait(provider string) {
	m.RateLimitWaitsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncInFlight() {
	m.TranslationsInFlight.Inc()
}

func (m *Metrics) DecInFlight() {
	m.TranslationsInFlight.Dec()
}
