package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crp_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crp_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReservationsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crp_reservations_admitted_total",
			Help: "Reservations that passed admission control",
		},
	)

	ReservationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crp_reservations_rejected_total",
			Help: "Reservations rejected at admission",
		},
		[]string{"reason"},
	)

	ReservationsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crp_reservations_expired_total",
			Help: "Reservations released by the expiry sweep",
		},
	)

	PaymentsSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crp_payments_settled_total",
			Help: "Payments settled into registrations",
		},
	)

	PaymentMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crp_payment_mismatches_total",
			Help: "Payments routed to manual reconciliation",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crp_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crp_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	RateLimitUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crp_rate_limit_unavailable_total",
			Help: "Rate limit checks skipped because redis was unreachable",
		},
	)
)
