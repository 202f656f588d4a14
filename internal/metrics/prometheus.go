package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workflow metrics
	WorkflowExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_workflow_executions_total",
			Help: "Total number of workflow executions",
		},
		[]string{"workflow", "status"}, // status: success|error
	)

	WorkflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductor_workflow_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow"},
	)

	WorkflowCompilations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_workflow_compilations_total",
			Help: "Total number of workflow compilations",
		},
		[]string{"workflow", "status"},
	)

	// Streaming metrics
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_stream_events_total",
			Help: "Total number of streamed runtime events",
		},
		[]string{"workflow", "type"}, // type: partial|tool_call|tool_result|final
	)

	// Token accounting
	ModelTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_model_tokens_total",
			Help: "Total tokens reported by model responses",
		},
		[]string{"workflow", "type"}, // type: input|output
	)

	// Remote adapter metrics
	RemoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_remote_calls_total",
			Help: "Total number of remote API calls",
		},
		[]string{"service", "operation", "status"}, // service: mem0|firecrawl|redis
	)

	RemoteCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductor_remote_call_latency_seconds",
			Help:    "Remote API call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "operation"},
	)

	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_retry_attempts_total",
			Help: "Total retry attempts against remote services",
		},
		[]string{"service"},
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductor_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_sessions_active",
			Help: "Current number of known sessions",
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(WorkflowExecutions)
	prometheus.MustRegister(WorkflowDuration)
	prometheus.MustRegister(WorkflowCompilations)

	prometheus.MustRegister(StreamEvents)
	prometheus.MustRegister(ModelTokens)

	prometheus.MustRegister(RemoteCalls)
	prometheus.MustRegister(RemoteCallLatency)
	prometheus.MustRegister(RetryAttempts)

	prometheus.MustRegister(ToolExecutions)
	prometheus.MustRegister(ToolLatency)

	prometheus.MustRegister(SessionsActive)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkflowExecution records one workflow run
func RecordWorkflowExecution(workflow string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkflowExecutions.WithLabelValues(workflow, status).Inc()
	WorkflowDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordCompilation records a workflow compilation
func RecordCompilation(workflow string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	WorkflowCompilations.WithLabelValues(workflow, status).Inc()
}

// RecordStreamEvent records one dispatched runtime event
func RecordStreamEvent(workflow, eventType string) {
	StreamEvents.WithLabelValues(workflow, eventType).Inc()
}

// RecordTokens records token usage from a model response
func RecordTokens(workflow string, input, output int) {
	if input > 0 {
		ModelTokens.WithLabelValues(workflow, "input").Add(float64(input))
	}
	if output > 0 {
		ModelTokens.WithLabelValues(workflow, "output").Add(float64(output))
	}
}

// RecordRemoteCall records a remote API call
func RecordRemoteCall(service, operation string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	RemoteCalls.WithLabelValues(service, operation, status).Inc()
	RemoteCallLatency.WithLabelValues(service, operation).Observe(latency.Seconds())
}

// RecordRetry records one retry attempt against a remote service
func RecordRetry(service string) {
	RetryAttempts.WithLabelValues(service).Inc()
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}
