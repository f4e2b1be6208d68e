// internal/service/booking/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_orders_created_total",
		Help: "Orders created, by channel. Duplicate webhook deliveries are not counted.",
	}, []string{"channel"})

	duplicateCreatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_duplicate_creates_total",
		Help: "Create webhooks absorbed by the idempotency key.",
	}, []string{"channel"})

	providerAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_provider_attempts_total",
		Help: "Upstream provider calls, by operation and outcome.",
	}, []string{"operation", "outcome"})

	exceptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_exceptions_total",
		Help: "Exception records escalated to human review, by operation and reason class.",
	}, []string{"operation", "reason"})
)
