package engine

import (
	"context"
	"fmt"
	"time"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/metrics"
	"infra-chatops/internal/workflow"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// run is the mutable state of one Execute call. It is owned by the driving
// goroutine and never shared.
type run struct {
	engine *Engine
	inst   *workflow.Instance
	log    logger.Logger
	report *workflow.Report

	halted    bool
	cancelled bool
	partial   bool
	failure   *workflow.StepResult
}

func (r *run) scope() workflow.Scope {
	return workflow.Scope{Parameters: r.inst.Parameters, Ledger: r.inst.Ledger}
}

// walk executes steps in order, descending into the branch each condition
// step selects. Nested steps share the instance ledger and position space.
func (r *run) walk(ctx context.Context, steps []*workflow.StepSpec) {
	for _, step := range steps {
		if !r.halted && (r.inst.Cancelled() || ctx.Err() != nil) {
			r.cancel(step)
		}
		if r.halted {
			r.skip(step)
			continue
		}
		r.visit(ctx, step)
	}
}

func (r *run) visit(ctx context.Context, step *workflow.StepSpec) {
	switch {
	case step.Type == workflow.StepCondition:
		left, op, right, err := step.Condition.Operands(r.scope())
		if err != nil {
			r.abort(step, err)
			r.skipBranches(step)
			return
		}
		res := r.dispatch(ctx, step, map[string]string{
			"left":     left,
			"operator": string(op),
			"right":    right,
		})
		r.settle(step, res)
		if !res.OK() {
			r.skipBranches(step)
			return
		}

		if workflow.FormatValue(res.Output["result"]) == "true" {
			r.walk(ctx, step.Then)
			r.report.Skipped = append(r.report.Skipped, workflow.StepNames(step.Else)...)
		} else {
			r.report.Skipped = append(r.report.Skipped, workflow.StepNames(step.Then)...)
			r.walk(ctx, step.Else)
		}

	case step.Condition != nil:
		ok, err := step.Condition.Evaluate(r.scope())
		if err != nil {
			r.abort(step, err)
			return
		}
		if !ok {
			r.log.Debug("step condition false, skipping", map[string]interface{}{"step": step.Name})
			r.skip(step)
			return
		}
		r.execute(ctx, step)

	default:
		r.execute(ctx, step)
	}
}

func (r *run) execute(ctx context.Context, step *workflow.StepSpec) {
	params, err := workflow.RenderParameters(step.Compiled(), r.scope())
	if err != nil {
		r.abort(step, err)
		return
	}
	r.settle(step, r.dispatch(ctx, step, params))
}

// settle applies the failure policy to a recorded result.
func (r *run) settle(step *workflow.StepSpec, res *workflow.StepResult) {
	if res.OK() {
		return
	}
	if step.BestEffort {
		r.partial = true
		r.log.Warn("best-effort step failed, continuing", map[string]interface{}{
			"step":      step.Name,
			"errorKind": res.Error.Kind,
		})
		return
	}
	r.halt(res)
}

// abort records an interpolation failure. It halts the run even for
// best-effort steps because later steps could no longer be trusted.
func (r *run) abort(step *workflow.StepSpec, err error) {
	res := workflow.Fail(workflow.ErrorInterpolationFailure, "%v", err)
	r.record(step, res, time.Now().UTC(), 0)
	r.halt(res)
}

func (r *run) halt(res *workflow.StepResult) {
	r.halted = true
	r.failure = res
	r.report.FailedStep = res.Step
	r.report.ErrorKind = res.Error.Kind
	r.log.Error("step failed, halting workflow", map[string]interface{}{
		"step":      res.Step,
		"position":  res.Index,
		"errorKind": res.Error.Kind,
		"error":     res.Error.Message,
	})
}

func (r *run) cancel(next *workflow.StepSpec) {
	r.halted = true
	r.cancelled = true
	r.report.Reason = workflow.ReasonCancelled
	r.report.ErrorKind = workflow.ErrorCancelled
	r.failure = &workflow.StepResult{
		Index:  next.Position,
		Status: workflow.StatusError,
		Error: &workflow.ErrorInfo{
			Kind:    workflow.ErrorCancelled,
			Message: fmt.Sprintf("workflow cancelled before step %q", next.Name),
		},
	}
	r.log.Warn("workflow cancelled", map[string]interface{}{"nextStep": next.Name})
}

func (r *run) skip(step *workflow.StepSpec) {
	r.report.Skipped = append(r.report.Skipped, workflow.StepNames([]*workflow.StepSpec{step})...)
}

func (r *run) skipBranches(step *workflow.StepSpec) {
	r.report.Skipped = append(r.report.Skipped, workflow.StepNames(step.Then)...)
	r.report.Skipped = append(r.report.Skipped, workflow.StepNames(step.Else)...)
}

func (r *run) status() workflow.State {
	switch {
	case r.cancelled, r.failure != nil:
		return workflow.StateFailed
	case r.partial:
		return workflow.StatePartiallyFailed
	}
	return workflow.StateSucceeded
}

// terminal runs the designated notification for the outcome, with the run
// facts added to its parameter environment. It runs even when the context
// was cancelled so the operator always hears about the result.
func (r *run) terminal(ctx context.Context, status workflow.State) *workflow.StepResult {
	tmpl := r.inst.Template
	spec := tmpl.Notify.Success
	if status == workflow.StateFailed {
		spec = tmpl.Notify.Failure
	}
	if spec == nil {
		return nil
	}

	env := make(map[string]string, len(r.inst.Parameters)+6)
	for k, v := range r.inst.Parameters {
		env[k] = v
	}
	env[workflow.FactStatus] = string(status)
	env[workflow.FactWorkflow] = tmpl.Name
	env[workflow.FactInstanceID] = r.inst.ID
	env[workflow.FactFailedStep] = ""
	env[workflow.FactErrorKind] = ""
	env[workflow.FactErrorMessage] = ""
	if r.failure != nil {
		env[workflow.FactFailedStep] = r.failure.Step
		env[workflow.FactErrorKind] = string(r.failure.Error.Kind)
		env[workflow.FactErrorMessage] = r.failure.Error.Message
	}

	ctx = context.WithoutCancel(ctx)
	params, err := workflow.RenderParameters(spec.Compiled(), workflow.Scope{Parameters: env, Ledger: r.inst.Ledger})
	if err != nil {
		res := workflow.Fail(workflow.ErrorInterpolationFailure, "%v", err)
		r.record(spec, res, time.Now().UTC(), 0)
		return res
	}
	return r.dispatchWith(ctx, spec, params, env)
}

func (r *run) dispatch(ctx context.Context, step *workflow.StepSpec, params map[string]string) *workflow.StepResult {
	return r.dispatchWith(ctx, step, params, r.inst.Parameters)
}

// dispatchWith validates params, hands the step to its handler, validates the
// output and records the result in the ledger.
func (r *run) dispatchWith(ctx context.Context, step *workflow.StepSpec, params, env map[string]string) *workflow.StepResult {
	e := r.engine
	started := time.Now().UTC()

	ctx, span := e.tracer.Start(ctx, "step "+step.Name, trace.WithAttributes(
		attribute.Int("step.position", step.Position),
		attribute.String("step.type", string(step.Type)),
	))
	defer span.End()

	var res *workflow.StepResult
	handler, ok := e.handlers[step.Type]
	switch {
	case !ok:
		res = workflow.Fail(workflow.ErrorInvalidInput, "no handler registered for step type %q", step.Type)
	case e.validator != nil:
		if err := e.validator.ValidateInput(step.Type, params); err != nil {
			res = workflow.Fail(workflow.ErrorInvalidInput, "invalid parameters: %v", err)
		}
	}

	if res == nil {
		snapshotParams := make(map[string]string, len(env))
		for k, v := range env {
			snapshotParams[k] = v
		}
		req := &workflow.StepRequest{
			InstanceID: r.inst.ID,
			Workflow:   r.inst.Template.Name,
			Step:       step.Name,
			Position:   step.Position,
			Type:       step.Type,
			Parameters: params,
			Snapshot: workflow.Snapshot{
				Parameters: snapshotParams,
				Steps:      r.inst.Ledger.Outputs(),
			},
		}
		r.log.Info("dispatching step", map[string]interface{}{
			"step":     step.Name,
			"position": step.Position,
			"type":     step.Type,
		})
		res = e.call(ctx, handler, req, e.timeoutFor(step))
	}

	if res.OK() && e.validator != nil {
		if err := e.validator.ValidateOutput(step.Type, res.Output); err != nil {
			res = workflow.FailWithOutput(workflow.ErrorInvalidOutput, res.Output, "handler output rejected: %v", err)
		}
	}

	duration := time.Since(started)
	r.record(step, res, started, duration)

	status := string(res.Status)
	metrics.StepDuration.WithLabelValues(string(step.Type), status).Observe(duration.Seconds())
	if e.recorder != nil {
		e.recorder.RecordStep(ctx, string(step.Type), status, duration)
	}
	if !res.OK() {
		metrics.StepsFailed.WithLabelValues(string(step.Type), string(res.Error.Kind)).Inc()
		span.SetStatus(codes.Error, res.Error.Message)
	}
	return res
}

func (r *run) record(step *workflow.StepSpec, res *workflow.StepResult, started time.Time, duration time.Duration) {
	res.Index = step.Position
	res.Step = step.Name
	res.Type = step.Type
	res.StartedAt = started
	res.Duration = duration
	if err := r.inst.Ledger.Append(res); err != nil {
		r.log.Error("ledger append rejected", map[string]interface{}{"step": step.Name, "error": err.Error()})
	}
}

// call runs the handler in its own goroutine so an overrunning or panicking
// handler can never stall the instance. The handler gets the step deadline;
// the engine waits an extra grace period before recording a timeout itself.
func (e *Engine) call(ctx context.Context, h workflow.Handler, req *workflow.StepRequest, timeout time.Duration) *workflow.StepResult {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *workflow.StepResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- workflow.Fail(workflow.ErrorExternalFailure, "handler panicked: %v", p)
			}
		}()
		done <- h.Run(stepCtx, req)
	}()

	timer := time.NewTimer(timeout + e.config.TimeoutGrace)
	defer timer.Stop()

	select {
	case res := <-done:
		return normalize(res, stepCtx, timeout)
	case <-timer.C:
		return workflow.Fail(workflow.ErrorTimeout, "step did not finish within %s", timeout)
	}
}

// normalize enforces the handler contract on whatever came back.
func normalize(res *workflow.StepResult, stepCtx context.Context, timeout time.Duration) *workflow.StepResult {
	if res == nil {
		return workflow.Fail(workflow.ErrorInvalidOutput, "handler returned no result")
	}
	switch res.Status {
	case workflow.StatusOk:
		if res.Output == nil {
			res.Output = map[string]interface{}{}
		}
		res.Error = nil
	case workflow.StatusError:
		if res.Error == nil {
			res.Error = &workflow.ErrorInfo{Kind: workflow.ErrorExternalFailure, Message: "step failed"}
		}
		if stepCtx.Err() == context.DeadlineExceeded && res.Error.Kind == workflow.ErrorExternalFailure {
			res.Error = &workflow.ErrorInfo{
				Kind:    workflow.ErrorTimeout,
				Message: fmt.Sprintf("step exceeded %s: %s", timeout, res.Error.Message),
			}
		}
	default:
		return workflow.Fail(workflow.ErrorInvalidOutput, "handler returned unknown status %q", res.Status)
	}
	return res
}
