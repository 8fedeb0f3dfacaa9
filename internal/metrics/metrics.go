package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "agent_dashboard"

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of requests sent to the agent backend, labeled by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	APIRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Latency of requests sent to the agent backend (seconds).",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	LiveConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_connects_total",
			Help:      "WebSocket connection attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	LiveReconnectsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a closed WebSocket connection.",
		},
	)

	LiveMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_messages_total",
			Help:      "Inbound WebSocket messages, labeled by message type (malformed for undecodable frames).",
		},
		[]string{"type"},
	)

	LiveConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connected",
			Help:      "1 while the live-status WebSocket is open.",
		},
	)

	DashboardRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_refresh_total",
			Help:      "Dashboard data refreshes, labeled by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	WizardRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_runs_total",
			Help:      "Test runs launched from the test runner, labeled by test type and final outcome.",
		},
		[]string{"test_type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestDurationSeconds,
		LiveConnectsTotal,
		LiveReconnectsScheduledTotal,
		LiveMessagesTotal,
		LiveConnected,
		DashboardRefreshTotal,
		WizardRunsTotal,
	)
}
