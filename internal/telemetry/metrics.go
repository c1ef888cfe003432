package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SamplesDelivered counts samples handed to observers or the poll cache
	SamplesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geotrack",
			Name:      "samples_delivered_total",
			Help:      "Total number of location samples delivered per source",
		},
		[]string{"mode", "source"},
	)

	// SamplesDropped counts samples a stream consumer was too slow to take
	SamplesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geotrack",
			Name:      "samples_dropped_total",
			Help:      "Total number of location samples dropped",
		},
		[]string{"mode", "reason"},
	)

	// PermissionDenials counts start attempts rejected by the permission gate
	PermissionDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geotrack",
			Name:      "permission_denied_total",
			Help:      "Total number of start attempts rejected for missing permissions",
		},
		[]string{"mode", "policy"},
	)

	// SubscriptionsActive tracks live platform subscriptions
	SubscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "geotrack",
			Name:      "subscriptions_active",
			Help:      "Number of active platform subscriptions",
		},
		[]string{"mode", "source"},
	)

	// SubscriptionErrors counts subscription requests the platform rejected
	SubscriptionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geotrack",
			Name:      "subscription_errors_total",
			Help:      "Total number of failed subscription requests",
		},
		[]string{"mode", "source"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(SamplesDelivered)
		prometheus.DefaultRegisterer.Register(SamplesDropped)
		prometheus.DefaultRegisterer.Register(PermissionDenials)
		prometheus.DefaultRegisterer.Register(SubscriptionsActive)
		prometheus.DefaultRegisterer.Register(SubscriptionErrors)
	})
}
