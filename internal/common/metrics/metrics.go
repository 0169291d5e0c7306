// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatops_commands_total",
			Help: "Chat commands received, by recognized intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	WorkflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatops_workflows_total",
			Help: "Workflow runs finished, by workflow and final status",
		},
		[]string{"workflow", "status"},
	)

	WorkflowsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatops_workflows_active",
			Help: "Workflow runs currently executing",
		},
		[]string{"workflow"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatops_step_duration_seconds",
			Help:    "Duration of workflow step dispatches in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"step_type", "status"},
	)

	StepsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatops_steps_failed_total",
			Help: "Failed workflow steps, by step type and error kind",
		},
		[]string{"step_type", "error_kind"},
	)

	ZeebeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatops_zeebe_jobs_total",
			Help: "Zeebe jobs handled by the chatops-command worker",
		},
		[]string{"result"},
	)
)
