package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lecture_extraction_duration_seconds",
			Help:    "Concept extraction duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"cached"},
	)

	ExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_extraction_total",
			Help: "Total concept extraction requests",
		},
		[]string{"status"},
	)

	FallbacksServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_fallbacks_served_total",
			Help: "Responses served from a fallback path instead of the model",
		},
		[]string{"flow"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	ExplanationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_explanations_total",
			Help: "Total concept explanations generated",
		},
		[]string{"fallback"},
	)

	UnderstandingLevel = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lecture_understanding_level",
			Help:    "Distribution of evaluated understanding levels",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	TeachSessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_teach_sessions_completed_total",
			Help: "Teach-to-learn sessions completed",
		},
		[]string{"reason"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lecture_active_sessions",
			Help: "Currently open websocket sessions",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	TranscriptionFragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecture_transcription_fragments_total",
			Help: "Transcript fragments received from the speech vendor",
		},
		[]string{"final"},
	)
)

func Init() {
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(ExtractionTotal)
	prometheus.MustRegister(FallbacksServed)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(ExplanationsTotal)
	prometheus.MustRegister(UnderstandingLevel)
	prometheus.MustRegister(TeachSessionsCompleted)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(TranscriptionFragments)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
