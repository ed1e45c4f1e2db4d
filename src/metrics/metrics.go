package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataviz_model_calls_total",
			Help: "Total number of language model calls by caller and outcome",
		},
		[]string{"caller", "outcome"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataviz_model_call_duration_seconds",
			Help:    "Duration of language model calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"caller"},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataviz_tool_invocations_total",
			Help: "Total number of tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dataviz_tool_duration_seconds",
			Help: "Duration of tool invocations in seconds",
		},
		[]string{"tool"},
	)

	LoopIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataviz_loop_iterations",
			Help:    "Model calls made per conversation loop run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	LoopOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataviz_loop_outcomes_total",
			Help: "Conversation loop terminations by outcome",
		},
		[]string{"outcome"},
	)

	RelevanceDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataviz_relevance_decisions_total",
			Help: "Relevance gate verdicts",
		},
		[]string{"verdict"},
	)

	ChartParseRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataviz_chart_parse_retries_total",
			Help: "Chart specifications re-requested after a parse or validation failure",
		},
	)

	SandboxRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataviz_sandbox_runs_total",
			Help: "Analysis sandbox executions by outcome",
		},
		[]string{"outcome"},
	)

	DatasetUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataviz_dataset_uploads_total",
			Help: "Dataset uploads by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataviz_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)
