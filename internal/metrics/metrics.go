package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Self-instrumentation for the diagnostics agent
var (
	// Tool call metrics
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srdiag_tool_calls_total",
			Help: "Total number of tool calls handled",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "srdiag_tool_call_duration_seconds",
			Help:    "Tool call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"tool"},
	)

	PhasesPerCall = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "srdiag_phases_per_call",
			Help:    "Orchestration phases executed per tool call",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 to 10
		},
	)

	// Orchestrator metrics
	OrchestratorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srdiag_orchestrator_requests_total",
			Help: "Total number of Central Orchestrator requests",
		},
		[]string{"endpoint", "status"},
	)

	OrchestratorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "srdiag_orchestrator_request_duration_seconds",
			Help:    "Central Orchestrator request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"endpoint"},
	)

	// Executor metrics
	SQLQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srdiag_sql_queries_total",
			Help: "Total number of SQL statements executed",
		},
		[]string{"status"},
	)

	PrometheusQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srdiag_prometheus_queries_total",
			Help: "Total number of monitoring queries executed",
		},
		[]string{"kind", "status"}, // kind: instant/range
	)

	SSHCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srdiag_ssh_commands_total",
			Help: "Total number of remote commands executed",
		},
		[]string{"command_type", "status"},
	)

	CLICommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srdiag_cli_commands_total",
			Help: "Total number of cloud CLI commands executed",
		},
		[]string{"storage_type", "status"},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "srdiag_sessions_active",
			Help: "Current number of live sessions",
		},
	)

	SessionRehydrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srdiag_session_rehydrations_total",
			Help: "Total number of session rehydrations",
		},
		[]string{"by"}, // by: id/key
	)
)
