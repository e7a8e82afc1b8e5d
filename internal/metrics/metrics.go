// Package metrics provides Prometheus metrics for the orchestrator service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowsTotal counts sequential workflow runs by final status.
	WorkflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "workflows_total",
			Help:      "Total number of sequential workflow runs by final status",
		},
		[]string{"status"}, // "succeeded", "failed"
	)

	// WorkflowsActive tracks currently executing sequential workflows.
	WorkflowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "workflows_active",
			Help:      "Number of currently executing sequential workflows",
		},
	)

	// WorkflowDuration tracks sequential workflow duration.
	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "workflow_duration_seconds",
			Help:      "Sequential workflow execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// StepsTotal counts dispatched steps by variant and status.
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "steps_total",
			Help:      "Total number of dispatched steps by variant and status",
		},
		[]string{"kind", "status"}, // status: "succeeded", "failed"
	)

	// StepDuration tracks step execution duration by variant.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ConditionEvaluations counts condition verdicts.
	ConditionEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "condition_evaluations_total",
			Help:      "Total number of condition evaluations by verdict",
		},
		[]string{"verdict"}, // "true", "false"
	)

	// PipelinesTotal counts dependency-graph runs by final status.
	PipelinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "pipelines_total",
			Help:      "Total number of pipeline runs by final status",
		},
		[]string{"status"}, // "succeeded", "failed"
	)

	// PipelineDuration tracks pipeline run duration.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// PipelineStepsTotal counts pipeline steps by outcome.
	PipelineStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "pipeline_steps_total",
			Help:      "Total number of pipeline steps by outcome",
		},
		[]string{"status"}, // "completed", "failed", "aborted"
	)

	// OracleCallsTotal counts oracle completions by provider and result.
	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "oracle_calls_total",
			Help:      "Total number of oracle completion calls",
		},
		[]string{"provider", "result"}, // result: "success", "error"
	)

	// GatewayCallsTotal counts gateway invocations by result.
	GatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "gateway_calls_total",
			Help:      "Total number of gateway invocations",
		},
		[]string{"result"}, // "success", "failure"
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StateStoreOperations counts state store operations.
	StateStoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "statestore_operations_total",
			Help:      "Total number of state store operations",
		},
		[]string{"operation", "result"}, // operation: set, get, delete; result: success, error
	)

	// NotificationsTotal counts webhook notifications by event and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objspace",
			Subsystem: "orchestrator",
			Name:      "notifications_total",
			Help:      "Total number of webhook notifications",
		},
		[]string{"event", "result"},
	)
)
