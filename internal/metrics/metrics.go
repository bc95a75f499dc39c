package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collection metrics
	CollectionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overwatch_collection_errors_total",
			Help: "Total number of metric kinds that could not be sampled",
		},
		[]string{"kind"},
	)

	// Alert pipeline metrics
	AlertsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overwatch_alerts_fired_total",
			Help: "Total number of alerts that passed the cooldown gate",
		},
		[]string{"kind"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overwatch_alerts_suppressed_total",
			Help: "Total number of alert candidates suppressed by cooldown",
		},
		[]string{"kind"},
	)

	HandlerDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overwatch_handler_dispatch_total",
			Help: "Total number of notification handler invocations",
		},
		[]string{"handler", "status"}, // status: ok, failed
	)

	HandlerDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overwatch_handler_dispatch_duration_seconds",
			Help:    "Notification handler latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"handler"},
	)

	// Stream metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overwatch_stream_subscribers",
			Help: "Current number of live stream subscribers",
		},
	)

	StreamDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overwatch_stream_deliveries_total",
			Help: "Total number of snapshot delivery attempts to subscribers",
		},
		[]string{"status"}, // status: delivered, dropped
	)

	// Loop metrics
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "overwatch_tick_duration_seconds",
			Help:    "Time spent in one distribution loop tick",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	TickStepPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overwatch_tick_step_panics_total",
			Help: "Total number of recovered panics per loop step",
		},
		[]string{"step"},
	)
)
