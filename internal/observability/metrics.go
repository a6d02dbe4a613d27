package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "quotes_total", Help: "Total number of driver quotes served"})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_booking", Name: "drivers_online", Help: "Number of driver positions ingested"})

	ETARequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "eta_requests_total", Help: "Per-driver ETA lookups by outcome"},
		[]string{"outcome"},
	)
	ETABatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_booking", Name: "eta_batch_latency_seconds", Help: "Wall time of a driver ETA batch"})

	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "checkouts_total", Help: "Checkout attempts by terminal state"},
		[]string{"state"},
	)
	RidesCreated  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "rides_created_total", Help: "Ride records persisted"})
	PaymentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "payment_errors_total", Help: "Payment provider errors by step"},
		[]string{"step"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_booking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
