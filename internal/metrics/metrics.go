// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gateway"

var (
	// GatekeeperDecisions counts navigation outcomes: allow, public,
	// refreshed, redirect.
	GatekeeperDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gatekeeper",
		Name:      "decisions_total",
		Help:      "Navigation gatekeeper decisions by outcome.",
	}, []string{"outcome"})

	// RefreshAttempts counts token refresh attempts by entry point
	// (edge middleware vs API route) and outcome.
	RefreshAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "refresh_attempts_total",
		Help:      "Token refresh attempts by entry point and outcome.",
	}, []string{"entry", "outcome"})

	// ProxyRequests counts proxied API requests by route and status
	// class.
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Proxied API requests by route and status class.",
	}, []string{"route", "status"})

	// ProxyDuration observes backend round-trip time per route.
	ProxyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "proxy",
		Name:      "request_duration_seconds",
		Help:      "Backend round-trip time for proxied requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// StatusClass collapses an HTTP status into its class label ("2xx").
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
