package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartItemsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_items_added_total",
		Help: "Total number of items added to carts",
	})

	CartItemsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_items_removed_total",
		Help: "Total number of items removed from carts",
	})

	DiscountsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discounts_applied_total",
		Help: "Discount code submissions by result code",
	}, []string{"result"})

	SessionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_conflicts_total",
		Help: "Total number of session saves rejected by a concurrent write",
	})

	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of purchase submissions with a valid nonce",
	})

	CheckoutValidationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_validation_errors_total",
		Help: "Checkout validation errors by error code",
	}, []string{"code"})

	PurchasesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_completed_total",
		Help: "Total number of completed purchases",
	}, []string{"gateway"})

	PurchasesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_failed_total",
		Help: "Total number of purchases that failed after validation",
	}, []string{"reason"})

	GatewayProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_processing_latency_seconds",
		Help:    "Latency of gateway purchase processing",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway"})

	PaymentsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Total number of payment events applied to sales statistics",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
