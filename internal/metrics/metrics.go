package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEmitted tracks domain events accepted by the dispatcher
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookd",
			Subsystem: "dispatch",
			Name:      "events_emitted_total",
			Help:      "Total domain events accepted for dispatch",
		},
		[]string{"event"},
	)

	// Deliveries tracks finished delivery attempts by outcome
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookd",
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Total webhook delivery attempts by outcome",
		},
		[]string{"outcome"}, // success, failed, retried
	)

	// DeliveryDuration tracks outbound attempt latency
	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hookd",
			Subsystem: "dispatch",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent on one outbound delivery attempt",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ActiveWorkers tracks delivery workers currently in flight
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hookd",
			Subsystem: "dispatch",
			Name:      "active_workers",
			Help:      "Delivery workers currently processing attempts",
		},
	)

	// RateLimitRejections tracks requests rejected by the rate limiter
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookd",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total API requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)
)
