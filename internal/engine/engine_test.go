package engine

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/runner"
	"infra-chatops/internal/workers/communication/send-notification"
	"infra-chatops/internal/workers/infrastructure/terraform-run"
	"infra-chatops/internal/workers/runtime/condition-eval"
	"infra-chatops/internal/workers/runtime/script-eval"
	"infra-chatops/internal/workflow"
	"infra-chatops/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deployWorkflow = `
name: deploy_workflow
steps:
  - name: build
    type: jenkins
    best_effort: %BEST_EFFORT%
    parameters:
      job: build-${service}
      parameters:
        SERVICE: ${service}
  - name: check_build
    type: condition
    condition:
      type: result
      step: 1
    then:
      - name: configure_hosts
        type: ansible
        parameters:
          playbook: deploy.yml
          limit: ${environment}
          extra_vars:
            build: ${step1_output.build_number}
    else:
      - name: report_build_failure
        type: notification
        parameters:
          message: build for ${service} did not succeed
  - name: smoke_test
    type: notification
    condition:
      type: parameter
      parameter: environment
      operator: eq
      value: production
    parameters:
      message: smoke testing ${service}
notify:
  success:
    name: announce
    type: notification
    parameters:
      message: "✅ Deployed ${service} to ${environment}"
  failure:
    name: alert
    type: notification
    parameters:
      message: "❌ Deploy of ${service} failed at ${failed_step}: ${error_message}"
      level: error
`

const scaleWorkflow = `
name: scale_workflow
steps:
  - name: read_replicas
    type: terraform
    parameters:
      action: output
      workspace: ${environment}
      dir: services/${service}
  - name: compute_count
    type: script
    parameters:
      set:
        new_count: 'params.count != "" ? int(params.count) : (params.direction == "up" ? int(step1.replicas) + int(params.amount) : max(0, int(step1.replicas) - int(params.amount)))'
  - name: apply_replicas
    type: terraform
    parameters:
      action: apply
      workspace: ${environment}
      dir: services/${service}
      vars:
        replicas: ${step2_output.new_count}
notify:
  success:
    name: announce
    type: notification
    parameters:
      message: "Scaled ${service} in ${environment} to ${step2_output.new_count} replicas"
`

func loadTemplate(t *testing.T, doc string, bestEffort bool) *workflow.Template {
	t.Helper()
	doc = strings.ReplaceAll(doc, "%BEST_EFFORT%", map[bool]string{true: "true", false: "false"}[bestEffort])
	tmpl, err := workflow.LoadTemplate(strings.NewReader(doc))
	require.NoError(t, err)
	return tmpl
}

// callLog records which steps ran and with what parameters.
type callLog struct {
	mu     sync.Mutex
	steps  []string
	params map[string]map[string]string
}

func (c *callLog) wrap(h workflow.HandlerFunc) workflow.HandlerFunc {
	return func(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
		c.mu.Lock()
		c.steps = append(c.steps, req.Step)
		if c.params == nil {
			c.params = map[string]map[string]string{}
		}
		c.params[req.Step] = req.Parameters
		c.mu.Unlock()
		return h(ctx, req)
	}
}

func (c *callLog) ran() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.steps...)
}

func okWith(output map[string]interface{}) workflow.HandlerFunc {
	return func(context.Context, *workflow.StepRequest) *workflow.StepResult { return workflow.Ok(output) }
}

func echoMessage() workflow.HandlerFunc {
	return func(_ context.Context, req *workflow.StepRequest) *workflow.StepResult {
		return workflow.Ok(map[string]interface{}{"message": req.Parameters["message"], "delivered": true})
	}
}

func deployHandlers(calls *callLog, jenkins, ansible workflow.HandlerFunc) map[workflow.StepType]workflow.Handler {
	return map[workflow.StepType]workflow.Handler{
		workflow.StepJenkins:      calls.wrap(jenkins),
		workflow.StepAnsible:      calls.wrap(ansible),
		workflow.StepNotification: calls.wrap(echoMessage()),
		workflow.StepCondition:    calls.wrap(conditioneval.NewHandler(conditioneval.LoadConfig(), logger.NewNoOpLogger()).Run),
	}
}

func newEngine(t *testing.T, handlers map[workflow.StepType]workflow.Handler, opts ...Option) *Engine {
	return New(handlers, Config{DefaultTimeout: time.Second, TimeoutGrace: 50 * time.Millisecond}, logger.NewTestLogger(t), opts...)
}

func indices(entries []workflow.StepResult) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Index
	}
	return out
}

func TestExecute_DeploySucceeds(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, false)
	calls := &callLog{}
	e := newEngine(t, deployHandlers(calls, okWith(map[string]interface{}{"build_number": float64(42), "result": "SUCCESS"}), okWith(nil)))

	inst := workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api", "environment": "staging"})
	report := e.Execute(context.Background(), inst)

	assert.Equal(t, workflow.StateSucceeded, report.Status)
	assert.Equal(t, workflow.StateSucceeded, inst.State())
	assert.Equal(t, []string{"build", "check_build", "configure_hosts", "announce"}, calls.ran())
	assert.Equal(t, []int{1, 2, 3, 6}, indices(report.Ledger))
	assert.ElementsMatch(t, []string{"report_build_failure", "smoke_test"}, report.Skipped)
	assert.Equal(t, "42", calls.params["configure_hosts"]["extra_vars.build"])
	assert.Equal(t, "staging", calls.params["configure_hosts"]["limit"])
	assert.Equal(t, "✅ Deployed api to staging", report.FinalMessage)
	assert.Empty(t, report.FailedStep)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

const plainWorkflow = `
name: plain_workflow
steps:
  - name: build
    type: jenkins
    parameters:
      job: build-${service}
  - name: configure
    type: ansible
    parameters:
      playbook: site.yml
      extra_vars:
        build: ${step1_output.build_number}
  - name: publish
    type: jenkins
    parameters:
      job: publish-${service}
`

func TestExecute_PlainStepsFillLedger(t *testing.T) {
	tmpl := loadTemplate(t, plainWorkflow, false)
	require.Nil(t, tmpl.Notify.Success)
	require.Nil(t, tmpl.Notify.Failure)

	calls := &callLog{}
	e := newEngine(t, deployHandlers(calls, okWith(map[string]interface{}{"build_number": float64(7)}), okWith(nil)))
	report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api"}))

	require.Equal(t, workflow.StateSucceeded, report.Status)
	assert.Len(t, report.Ledger, tmpl.StepCount())
	assert.Equal(t, []int{1, 2, 3}, indices(report.Ledger))
	for _, entry := range report.Ledger {
		assert.True(t, entry.OK(), "step %s", entry.Step)
	}
	assert.Equal(t, []string{"build", "configure", "publish"}, calls.ran())
	assert.Equal(t, "7", calls.params["configure"]["extra_vars.build"])
	assert.Empty(t, report.Skipped)
	assert.Equal(t, report.Summary, report.FinalMessage)
}

func TestExecute_DeployFailureUsesFailureNotification(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, false)
	calls := &callLog{}
	ansible := func(context.Context, *workflow.StepRequest) *workflow.StepResult {
		return workflow.Fail(workflow.ErrorExternalFailure, "playbook exited with code 2")
	}
	e := newEngine(t, deployHandlers(calls, okWith(map[string]interface{}{"build_number": float64(42)}), ansible))

	inst := workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api", "environment": "production"})
	report := e.Execute(context.Background(), inst)

	assert.Equal(t, workflow.StateFailed, report.Status)
	assert.Equal(t, "configure_hosts", report.FailedStep)
	assert.Equal(t, workflow.ErrorExternalFailure, report.ErrorKind)
	assert.Equal(t, []string{"build", "check_build", "configure_hosts", "alert"}, calls.ran())
	assert.Equal(t, []int{1, 2, 3, 6}, indices(report.Ledger))
	assert.Contains(t, report.Skipped, "smoke_test")
	assert.Equal(t, "❌ Deploy of api failed at configure_hosts: playbook exited with code 2", report.FinalMessage)
	assert.Equal(t, "error", calls.params["alert"]["level"])
}

func TestExecute_ResultConditionTakesElseBranch(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, true)
	calls := &callLog{}
	jenkins := func(context.Context, *workflow.StepRequest) *workflow.StepResult {
		return workflow.FailWithOutput(workflow.ErrorExternalFailure, map[string]interface{}{"result": "FAILURE"}, "build finished with FAILURE")
	}
	e := newEngine(t, deployHandlers(calls, jenkins, okWith(nil)))

	report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api", "environment": "production"}))

	assert.Equal(t, workflow.StatePartiallyFailed, report.Status)
	assert.Equal(t, []string{"build", "check_build", "report_build_failure", "smoke_test", "announce"}, calls.ran())
	assert.Equal(t, []int{1, 2, 4, 5, 6}, indices(report.Ledger))
	assert.Contains(t, report.Skipped, "configure_hosts")
	assert.Equal(t, false, report.Ledger[1].Output["result"])
	assert.Empty(t, report.FailedStep)
}

func TestExecute_InterpolationFailureHaltsBestEffortStep(t *testing.T) {
	tmpl := loadTemplate(t, `
name: wf
steps:
  - name: first
    type: script
    parameters:
      set.count: "1"
  - name: second
    type: notification
    best_effort: true
    parameters:
      message: count is ${step1_output.missing}
  - name: third
    type: notification
    parameters:
      message: never
`, false)
	calls := &callLog{}
	e := newEngine(t, map[workflow.StepType]workflow.Handler{
		workflow.StepScript:       calls.wrap(okWith(map[string]interface{}{"count": 1})),
		workflow.StepNotification: calls.wrap(echoMessage()),
	})

	report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "x", nil))

	assert.Equal(t, workflow.StateFailed, report.Status)
	assert.Equal(t, workflow.ErrorInterpolationFailure, report.ErrorKind)
	assert.Equal(t, "second", report.FailedStep)
	assert.Equal(t, []string{"first"}, calls.ran())
	assert.Equal(t, []int{1, 2}, indices(report.Ledger))
	assert.Equal(t, []string{"third"}, report.Skipped)
	assert.Contains(t, report.FinalMessage, "wf")
}

func TestExecute_CancelBetweenSteps(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, false)
	calls := &callLog{}
	var inst *workflow.Instance
	jenkins := func(context.Context, *workflow.StepRequest) *workflow.StepResult {
		assert.True(t, inst.Cancel())
		return workflow.Ok(map[string]interface{}{"build_number": float64(7)})
	}
	e := newEngine(t, deployHandlers(calls, jenkins, okWith(nil)))

	inst = workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api", "environment": "production"})
	report := e.Execute(context.Background(), inst)

	assert.Equal(t, workflow.StateFailed, report.Status)
	assert.Equal(t, workflow.ReasonCancelled, report.Reason)
	assert.Equal(t, workflow.ErrorCancelled, report.ErrorKind)
	assert.Equal(t, []string{"build", "alert"}, calls.ran())
	assert.Equal(t, []int{1, 6}, indices(report.Ledger))
	assert.ElementsMatch(t, []string{"check_build", "configure_hosts", "report_build_failure", "smoke_test"}, report.Skipped)
	assert.False(t, inst.Cancel())
}

func TestExecute_ContextCancelStillNotifies(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, false)
	calls := &callLog{}
	ctx, cancel := context.WithCancel(context.Background())
	jenkins := func(context.Context, *workflow.StepRequest) *workflow.StepResult {
		cancel()
		return workflow.Ok(map[string]interface{}{"build_number": float64(7)})
	}
	e := newEngine(t, deployHandlers(calls, jenkins, okWith(nil)))

	report := e.Execute(ctx, workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api", "environment": "production"}))

	assert.Equal(t, workflow.StateFailed, report.Status)
	assert.Equal(t, workflow.ReasonCancelled, report.Reason)
	assert.Equal(t, []string{"build", "alert"}, calls.ran())
	require.Len(t, report.Ledger, 2)
	assert.True(t, report.Ledger[1].OK())
}

func TestExecute_HandlerTimeouts(t *testing.T) {
	tmpl := loadTemplate(t, `
name: wf
steps:
  - name: slow
    type: jenkins
    timeout: 50ms
    parameters:
      job: slow
`, false)

	t.Run("handler ignores deadline", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		e := newEngine(t, map[workflow.StepType]workflow.Handler{
			workflow.StepJenkins: workflow.HandlerFunc(func(context.Context, *workflow.StepRequest) *workflow.StepResult {
				<-release
				return workflow.Ok(nil)
			}),
		})

		start := time.Now()
		report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "x", nil))
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, workflow.StateFailed, report.Status)
		assert.Equal(t, workflow.ErrorTimeout, report.ErrorKind)
	})

	t.Run("handler reports deadline as external failure", func(t *testing.T) {
		e := newEngine(t, map[workflow.StepType]workflow.Handler{
			workflow.StepJenkins: workflow.HandlerFunc(func(ctx context.Context, _ *workflow.StepRequest) *workflow.StepResult {
				<-ctx.Done()
				return workflow.Fail(workflow.ErrorExternalFailure, "request aborted")
			}),
		})

		report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "x", nil))
		assert.Equal(t, workflow.ErrorTimeout, report.ErrorKind)
		require.Len(t, report.Ledger, 1)
		assert.Contains(t, report.Ledger[0].Error.Message, "request aborted")
	})
}

func TestExecute_HandlerContractViolations(t *testing.T) {
	tmpl := loadTemplate(t, `
name: wf
steps:
  - name: only
    type: jenkins
    parameters:
      job: x
`, false)

	tests := []struct {
		name    string
		handler workflow.HandlerFunc
		kind    workflow.ErrorKind
		message string
	}{
		{
			name:    "panic",
			handler: func(context.Context, *workflow.StepRequest) *workflow.StepResult { panic("boom") },
			kind:    workflow.ErrorExternalFailure,
			message: "panicked",
		},
		{
			name:    "nil result",
			handler: func(context.Context, *workflow.StepRequest) *workflow.StepResult { return nil },
			kind:    workflow.ErrorInvalidOutput,
			message: "no result",
		},
		{
			name: "unknown status",
			handler: func(context.Context, *workflow.StepRequest) *workflow.StepResult {
				return &workflow.StepResult{Status: "maybe"}
			},
			kind:    workflow.ErrorInvalidOutput,
			message: "unknown status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, map[workflow.StepType]workflow.Handler{workflow.StepJenkins: tt.handler})
			report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "x", nil))
			assert.Equal(t, workflow.StateFailed, report.Status)
			assert.Equal(t, tt.kind, report.ErrorKind)
			require.Len(t, report.Ledger, 1)
			assert.Contains(t, report.Ledger[0].Error.Message, tt.message)
		})
	}
}

func TestExecute_TerminalNotificationFailure(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, false)
	calls := &callLog{}
	handlers := deployHandlers(calls, okWith(map[string]interface{}{"build_number": float64(1)}), okWith(nil))
	handlers[workflow.StepNotification] = workflow.HandlerFunc(func(context.Context, *workflow.StepRequest) *workflow.StepResult {
		return workflow.Fail(workflow.ErrorExternalFailure, "chat unavailable")
	})
	e := newEngine(t, handlers)

	report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api", "environment": "staging"}))

	assert.Equal(t, workflow.StatePartiallyFailed, report.Status)
	assert.Equal(t, report.Summary, report.FinalMessage)
	require.Len(t, report.Ledger, 4)
	assert.Equal(t, 6, report.Ledger[3].Index)
	assert.False(t, report.Ledger[3].OK())
}

func TestExecute_InstanceRunsOnce(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, false)
	e := newEngine(t, deployHandlers(&callLog{}, okWith(map[string]interface{}{"build_number": float64(1)}), okWith(nil)))
	inst := workflow.NewInstance(tmpl, "deploy", map[string]string{"service": "api", "environment": "staging"})

	first := e.Execute(context.Background(), inst)
	require.Equal(t, workflow.StateSucceeded, first.Status)

	second := e.Execute(context.Background(), inst)
	assert.Equal(t, workflow.StateSucceeded, second.Status)
	assert.Contains(t, second.Reason, "invalid state transition")
}

func TestSupports(t *testing.T) {
	tmpl := loadTemplate(t, deployWorkflow, false)
	e := newEngine(t, map[workflow.StepType]workflow.Handler{workflow.StepNotification: echoMessage()})

	err := e.Supports(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[ansible condition jenkins]")

	e = newEngine(t, deployHandlers(&callLog{}, okWith(nil), okWith(nil)))
	assert.NoError(t, e.Supports(tmpl))
}

// varFileRunner records the tfvars file handed to terraform apply before the
// handler removes it.
type varFileRunner struct {
	*runner.ScriptedRunner
	mu   sync.Mutex
	vars map[string]interface{}
}

func (r *varFileRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	if len(cmd.Args) > 0 && cmd.Args[0] == "apply" {
		for _, arg := range cmd.Args {
			if path, ok := strings.CutPrefix(arg, "-var-file="); ok {
				data, err := os.ReadFile(path)
				if err == nil {
					r.mu.Lock()
					_ = json.Unmarshal(data, &r.vars)
					r.mu.Unlock()
				}
			}
		}
	}
	return r.ScriptedRunner.Run(ctx, cmd)
}

func scaleEngine(t *testing.T, tf *varFileRunner, sink *sendnotification.RecordingSink) *Engine {
	log := logger.NewTestLogger(t)
	notifier, err := sendnotification.NewHandler(sendnotification.LoadConfig(), sink, log)
	require.NoError(t, err)

	reg, err := registry.LoadRegistry("../../configs/step-registry.json")
	require.NoError(t, err)
	validator, err := NewRegistryValidator(reg)
	require.NoError(t, err)

	return newEngine(t, map[workflow.StepType]workflow.Handler{
		workflow.StepTerraform:    terraformrun.NewHandler(&terraformrun.Config{Binary: "terraform", WorkingDir: "/srv/terraform"}, tf, log),
		workflow.StepScript:       scripteval.NewHandler(scripteval.LoadConfig(), log),
		workflow.StepNotification: notifier,
	}, WithValidator(validator))
}

func TestExecute_ScaleWorkflow(t *testing.T) {
	tests := []struct {
		name     string
		params   map[string]string
		replicas float64
	}{
		{"down within range", map[string]string{"direction": "down", "amount": "2", "count": ""}, 3},
		{"down clamps at zero", map[string]string{"direction": "down", "amount": "8", "count": ""}, 0},
		{"up", map[string]string{"direction": "up", "amount": "3", "count": ""}, 8},
		{"explicit count", map[string]string{"direction": "", "amount": "", "count": "7"}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tf := &varFileRunner{ScriptedRunner: runner.NewScriptedRunner().
				On(runner.Reply{Stdout: `{"replicas": {"sensitive": false, "type": "number", "value": 5}}`}, "output", "-json").
				On(runner.Reply{Stdout: "Apply complete! Resources: 0 added, 1 changed, 0 destroyed."}, "apply")}
			sink := sendnotification.NewRecordingSink()
			e := scaleEngine(t, tf, sink)

			params := map[string]string{"service": "api", "environment": "production"}
			for k, v := range tt.params {
				params[k] = v
			}
			inst := workflow.NewInstance(loadTemplate(t, scaleWorkflow, false), "scale", params)
			report := e.Execute(context.Background(), inst)

			require.Equal(t, workflow.StateSucceeded, report.Status, "report: %+v", report.Ledger)
			assert.Equal(t, []int{1, 2, 3, 4}, indices(report.Ledger))
			assert.Equal(t, tt.replicas, tf.vars["replicas"])

			want := "Scaled api in production to " + workflow.FormatValue(tt.replicas) + " replicas"
			assert.Equal(t, want, report.FinalMessage)
			msgs := sink.Messages(inst.ID)
			require.Len(t, msgs, 1)
			assert.Equal(t, want, msgs[0].Text)
		})
	}
}

func TestExecute_RegistryValidatorRejectsParameters(t *testing.T) {
	reg, err := registry.LoadRegistry("../../configs/step-registry.json")
	require.NoError(t, err)
	validator, err := NewRegistryValidator(reg)
	require.NoError(t, err)

	tmpl := loadTemplate(t, `
name: wf
steps:
  - name: trigger
    type: jenkins
    parameters:
      job: build-api
      token: secret
`, false)
	calls := &callLog{}
	e := newEngine(t, map[workflow.StepType]workflow.Handler{workflow.StepJenkins: calls.wrap(okWith(nil))}, WithValidator(validator))

	report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "x", nil))
	assert.Equal(t, workflow.ErrorInvalidInput, report.ErrorKind)
	assert.Empty(t, calls.ran())
	require.Len(t, report.Ledger, 1)
	assert.Contains(t, report.Ledger[0].Error.Message, "invalid parameters")
}

func TestExecute_RegistryValidatorRejectsOutput(t *testing.T) {
	reg, err := registry.LoadRegistry("../../configs/step-registry.json")
	require.NoError(t, err)
	validator, err := NewRegistryValidator(reg)
	require.NoError(t, err)

	tmpl := loadTemplate(t, `
name: wf
steps:
  - name: trigger
    type: jenkins
    parameters:
      job: build-api
`, false)
	e := newEngine(t, map[workflow.StepType]workflow.Handler{
		workflow.StepJenkins: okWith(map[string]interface{}{"build_number": "forty-two"}),
	}, WithValidator(validator))

	report := e.Execute(context.Background(), workflow.NewInstance(tmpl, "x", nil))
	assert.Equal(t, workflow.ErrorInvalidOutput, report.ErrorKind)
	require.Len(t, report.Ledger, 1)
	assert.Equal(t, "forty-two", report.Ledger[0].Output["build_number"])
}

func TestStepTimeouts(t *testing.T) {
	reg, err := registry.LoadRegistry("../../configs/step-registry.json")
	require.NoError(t, err)

	timeouts, err := StepTimeouts(reg)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, timeouts[workflow.StepTerraform])
	assert.Equal(t, 5*time.Second, timeouts[workflow.StepScript])

	e := New(nil, Config{StepTimeouts: timeouts}, logger.NewNoOpLogger())
	assert.Equal(t, 15*time.Minute, e.timeoutFor(&workflow.StepSpec{Type: workflow.StepTerraform}))
	assert.Equal(t, time.Second, e.timeoutFor(&workflow.StepSpec{Type: workflow.StepTerraform, Timeout: time.Second}))
	assert.Equal(t, DefaultStepTimeout, e.timeoutFor(&workflow.StepSpec{Type: workflow.StepAnsible}))
}
