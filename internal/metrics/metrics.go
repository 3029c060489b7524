// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/curateworld/venue-scraper/internal/domain"
)

var (
	initOnce sync.Once

	venueAttemptsCounter     *prometheus.CounterVec
	eventsExtractedCounter   *prometheus.CounterVec
	fetchDurationMetric      *prometheus.HistogramVec
	runsTotalCounter         *prometheus.CounterVec
	cachedEventsGaugeMetric  prometheus.Gauge
	failedVenuesGaugeMetric  prometheus.Gauge
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		venueAttemptsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_venue_attempts_total",
				Help: "Total venue scrape attempts by terminal status.",
			},
			[]string{"status"},
		)

		eventsExtractedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_events_extracted_total",
				Help: "Total events extracted by extraction method.",
			},
			[]string{"method"},
		)

		fetchDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_fetch_duration_seconds",
				Help:    "Duration of source fetches in seconds, by source kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_runs_total",
				Help: "Total completed scrape runs by outcome.",
			},
			[]string{"status"},
		)

		cachedEventsGaugeMetric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_cached_events",
				Help: "Events currently held in the venue cache.",
			},
		)

		failedVenuesGaugeMetric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_failed_venues",
				Help: "Venues currently in a failed or empty state.",
			},
		)

		prometheus.MustRegister(
			venueAttemptsCounter,
			eventsExtractedCounter,
			fetchDurationMetric,
			runsTotalCounter,
			cachedEventsGaugeMetric,
			failedVenuesGaugeMetric,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []domain.VenueStatus{
			domain.StatusSuccess,
			domain.StatusError,
			domain.StatusEmptyPage,
			domain.StatusEmptyPagePreserved,
		} {
			venueAttemptsCounter.WithLabelValues(string(status))
		}

		for _, method := range []domain.ExtractionMethod{
			domain.MethodICS,
			domain.MethodTribe,
			domain.MethodLLM,
			domain.MethodURLPattern,
			domain.MethodCalendarLink,
		} {
			eventsExtractedCounter.WithLabelValues(string(method))
		}

		for _, status := range []domain.RunStatus{
			domain.RunSuccess,
			domain.RunPartialSuccess,
			domain.RunFailed,
			domain.RunError,
		} {
			runsTotalCounter.WithLabelValues(string(status))
		}
	})
}

func IncVenueAttempt(status domain.VenueStatus) {
	Init()
	venueAttemptsCounter.WithLabelValues(string(status)).Inc()
}

func AddEventsExtracted(method domain.ExtractionMethod, n int) {
	Init()
	if n <= 0 || method == domain.MethodNone {
		return
	}
	eventsExtractedCounter.WithLabelValues(string(method)).Add(float64(n))
}

func ObserveFetchDuration(kind string, d time.Duration) {
	Init()
	fetchDurationMetric.WithLabelValues(kind).Observe(d.Seconds())
}

func IncRunOutcome(status domain.RunStatus) {
	Init()
	runsTotalCounter.WithLabelValues(string(status)).Inc()
}

func SetCachedEvents(n int) {
	Init()
	cachedEventsGaugeMetric.Set(float64(n))
}

func SetFailedVenues(n int) {
	Init()
	failedVenuesGaugeMetric.Set(float64(n))
}
