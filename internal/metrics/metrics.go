package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragmentgw_generations_total",
			Help: "Total number of generation requests processed",
		},
		[]string{"provider", "model", "template", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fragmentgw_generation_duration_seconds",
			Help:    "Generation request duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider", "model"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragmentgw_rate_limit_hits_total",
			Help: "Total number of admission checks that were denied",
		},
		[]string{"anonymous"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragmentgw_provider_errors_total",
			Help: "Total number of provider errors by mapped class",
		},
		[]string{"provider", "class"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fragmentgw_active_streams",
			Help: "Number of in-flight generation streams",
		},
	)

	SanitizedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragmentgw_sanitized_bytes_total",
			Help: "Total input bytes that passed through the sanitizer",
		},
	)
)

func RecordGeneration(provider, model, template, status string, durationSec float64) {
	GenerationsTotal.WithLabelValues(provider, model, template, status).Inc()
	GenerationDuration.WithLabelValues(provider, model).Observe(durationSec)
}

func RecordRateLimitHit(anonymous bool) {
	label := "false"
	if anonymous {
		label = "true"
	}
	RateLimitHits.WithLabelValues(label).Inc()
}

func RecordProviderError(provider, class string) {
	ProviderErrors.WithLabelValues(provider, class).Inc()
}
