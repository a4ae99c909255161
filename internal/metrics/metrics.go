// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for connection counts, counters for message and
// moderation throughput, and a histogram for fan-out latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of admitted WebSocket
	// connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatserver_connections_total",
		Help: "Current number of admitted WebSocket connections",
	})

	// MessagesTotal counts the messages processed by the pipeline, labeled by
	// type: "chat", "system", or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatserver_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"})

	// AdmissionsTotal counts admission decisions, labeled by outcome:
	// "admitted" or "rejected".
	AdmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatserver_admissions_total",
		Help: "Total number of connection admission decisions",
	}, []string{"outcome"})

	// ModerationActionsTotal counts moderation commands, labeled by action:
	// "delete", "clear", "ban", "temp_ban", "system", "report".
	ModerationActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatserver_moderation_actions_total",
		Help: "Total number of moderation commands executed",
	}, []string{"action"})

	// BroadcastLatency records fan-out latency in seconds.
	BroadcastLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatserver_broadcast_latency_seconds",
		Help:    "Broadcast fan-out latency in seconds",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		AdmissionsTotal,
		ModerationActionsTotal,
		BroadcastLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
