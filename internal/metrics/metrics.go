// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nexus_bot"

var (
	// Searches counts settled search attempts by outcome: results, empty,
	// failed, not_ready, error.
	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "searches_total",
		Help:      "Search attempts by outcome.",
	}, []string{"outcome"})

	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_rejections_total",
		Help:      "Search attempts refused because the daily limit was reached.",
	}, []string{"tier"})

	NodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_failures_total",
		Help:      "Backend node failures during fan-out by kind: unreachable, http.",
	}, []string{"node", "kind"})

	NodeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "node_search_seconds",
		Help:      "Time spent collecting one node's result stream.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"node"})

	AdmissionInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_in_flight",
		Help:      "Fan-out operations currently holding an admission slot.",
	})

	AdmissionWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_waiting",
		Help:      "Searches queued for an admission slot.",
	})

	BroadcastSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_sends_total",
		Help:      "Broadcast deliveries by result: ok, failed.",
	}, []string{"result"})

	ReminderSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expiry_reminders_total",
		Help:      "Premium expiry reminders by result: ok, failed.",
	}, []string{"result"})

	Updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telegram_updates_total",
		Help:      "Inbound Telegram updates by intake mode.",
	}, []string{"mode"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
