package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Observation metrics
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teddy_observations_total",
			Help: "Total number of temperature observations processed",
		},
		[]string{"driver"}, // driver: foreground, background
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teddy_alerts_total",
			Help: "Total number of band-transition alerts emitted",
		},
		[]string{"band"},
	)

	ObserveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "teddy_observe_duration_seconds",
			Help:    "Latency of a single observation through the transition detector",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Driver metrics
	FeedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teddy_feed_errors_total",
			Help: "Total number of feed subscription/read failures",
		},
		[]string{"driver"},
	)

	PollRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teddy_poll_runs_total",
			Help: "Total number of background poll invocations by outcome",
		},
		[]string{"outcome"}, // outcome: new_data, no_data, failed
	)

	SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teddy_subscriptions_active",
			Help: "Number of live device subscriptions held by the foreground driver",
		},
	)

	DeliveryErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teddy_delivery_errors_total",
			Help: "Total number of failed notification deliveries",
		},
	)
)
