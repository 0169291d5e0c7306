// Package engine drives workflow instances: it walks the step tree in order,
// evaluates conditions, interpolates parameters, dispatches steps to their
// handlers and produces the final report.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/metrics"
	"infra-chatops/internal/workflow"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DefaultStepTimeout  = 5 * time.Minute
	DefaultTimeoutGrace = 2 * time.Second
)

type Config struct {
	DefaultTimeout time.Duration
	TimeoutGrace   time.Duration
	StepTimeouts   map[workflow.StepType]time.Duration
}

// SchemaValidator checks handler inputs and outputs per step type.
type SchemaValidator interface {
	ValidateInput(t workflow.StepType, params map[string]string) error
	ValidateOutput(t workflow.StepType, output map[string]interface{}) error
}

// Recorder receives otel measurements; *observability.Observability satisfies it.
type Recorder interface {
	RecordWorkflow(ctx context.Context, workflow, status string)
	RecordStep(ctx context.Context, stepType, status string, duration time.Duration)
}

type Engine struct {
	handlers  map[workflow.StepType]workflow.Handler
	config    Config
	validator SchemaValidator
	recorder  Recorder
	tracer    trace.Tracer
	logger    logger.Logger
}

type Option func(*Engine)

func WithValidator(v SchemaValidator) Option { return func(e *Engine) { e.validator = v } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func New(handlers map[workflow.StepType]workflow.Handler, cfg Config, log logger.Logger, opts ...Option) *Engine {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultStepTimeout
	}
	if cfg.TimeoutGrace <= 0 {
		cfg.TimeoutGrace = DefaultTimeoutGrace
	}

	e := &Engine{
		handlers: make(map[workflow.StepType]workflow.Handler, len(handlers)),
		config:   cfg,
		tracer:   noop.NewTracerProvider().Tracer("engine"),
		logger:   log.WithFields(map[string]interface{}{"component": "engine"}),
	}
	for t, h := range handlers {
		e.handlers[t] = h
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports the step types a template uses that have no handler.
func (e *Engine) Supports(t *workflow.Template) error {
	missing := map[workflow.StepType]bool{}
	t.Walk(func(s *workflow.StepSpec) {
		if _, ok := e.handlers[s.Type]; !ok {
			missing[s.Type] = true
		}
	})
	if len(missing) == 0 {
		return nil
	}
	types := make([]string, 0, len(missing))
	for st := range missing {
		types = append(types, string(st))
	}
	sort.Strings(types)
	return fmt.Errorf("workflow %s: no handler for step types %v", t.Name, types)
}

func (e *Engine) timeoutFor(s *workflow.StepSpec) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	if d, ok := e.config.StepTimeouts[s.Type]; ok && d > 0 {
		return d
	}
	return e.config.DefaultTimeout
}

// Execute runs inst to completion and returns its report. Steps run strictly
// one after another; separate instances may be executed concurrently.
func (e *Engine) Execute(ctx context.Context, inst *workflow.Instance) *workflow.Report {
	tmpl := inst.Template
	report := &workflow.Report{
		InstanceID: inst.ID,
		Workflow:   tmpl.Name,
		Intent:     inst.Intent,
		Parameters: inst.Parameters,
		StartedAt:  time.Now().UTC(),
	}

	if err := inst.Transition(workflow.StateRunning); err != nil {
		report.Status = inst.State()
		report.Reason = err.Error()
		report.Ledger = inst.Ledger.Entries()
		return report
	}

	log := e.logger.WithFields(map[string]interface{}{
		"instanceId": inst.ID,
		"workflow":   tmpl.Name,
	})
	log.Info("workflow started", map[string]interface{}{"intent": inst.Intent, "steps": tmpl.StepCount()})

	metrics.WorkflowsActive.WithLabelValues(tmpl.Name).Inc()
	defer metrics.WorkflowsActive.WithLabelValues(tmpl.Name).Dec()

	ctx, span := e.tracer.Start(ctx, "workflow "+tmpl.Name, trace.WithAttributes(
		attribute.String("workflow.instance_id", inst.ID),
		attribute.String("workflow.intent", inst.Intent),
	))
	defer span.End()

	r := &run{engine: e, inst: inst, log: log, report: report}
	r.walk(ctx, tmpl.Steps)

	status := r.status()
	terminal := r.terminal(ctx, status)
	if terminal != nil && !terminal.OK() && status == workflow.StateSucceeded {
		status = workflow.StatePartiallyFailed
	}

	if err := inst.Transition(status); err != nil {
		log.Error("state transition failed", map[string]interface{}{"error": err.Error()})
	}

	report.Status = status
	report.Ledger = inst.Ledger.Entries()
	report.Summary = workflow.Summarize(tmpl.Name, status, report.Ledger)
	report.FinalMessage = report.Summary
	if terminal.OK() {
		if msg, ok := terminal.Output["message"].(string); ok && msg != "" {
			report.FinalMessage = msg
		}
	}
	report.FinishedAt = time.Now().UTC()

	metrics.WorkflowsTotal.WithLabelValues(tmpl.Name, string(status)).Inc()
	if e.recorder != nil {
		e.recorder.RecordWorkflow(ctx, tmpl.Name, string(status))
	}
	span.SetAttributes(attribute.String("workflow.status", string(status)))

	log.Info("workflow finished", map[string]interface{}{
		"status":     status,
		"ledger":     len(report.Ledger),
		"failedStep": report.FailedStep,
		"errorKind":  report.ErrorKind,
		"durationMs": report.Duration().Milliseconds(),
	})
	return report
}
