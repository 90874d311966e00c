// Package metrics exposes the service's Prometheus collectors. Rejected
// deliveries are the operator alerting signal: a permanently rejected
// notification is never retried by the provider and needs manual
// reconciliation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_webhook_deliveries_total",
		Help: "Inbound provider webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})

	CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_granted_total",
		Help: "Credits granted to user balances, by product.",
	}, []string{"product_id"})
)
