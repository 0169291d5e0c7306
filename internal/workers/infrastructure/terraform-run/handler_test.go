// internal/workers/infrastructure/terraform-run/handler_test.go
package terraformrun

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/runner"
	"infra-chatops/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outputJSON = `{
  "replicas": {"sensitive": false, "type": "number", "value": 5},
  "endpoint": {"sensitive": false, "type": "string", "value": "https://api.internal"},
  "db_password": {"sensitive": true, "type": "string", "value": "hunter2"}
}`

func createTestConfig() *Config {
	return &Config{Binary: "terraform", WorkingDir: "/srv/terraform", Timeout: time.Minute}
}

func newTestHandler(t *testing.T, r runner.CommandRunner) *Handler {
	return NewHandler(createTestConfig(), r, logger.NewTestLogger(t))
}

func TestHandler_Run_Output(t *testing.T) {
	r := runner.NewScriptedRunner().On(runner.Reply{Stdout: outputJSON}, "output", "-json")
	h := newTestHandler(t, r)

	res := h.Run(context.Background(), &workflow.StepRequest{
		Step:       "read_replicas",
		Parameters: map[string]string{"action": "output", "dir": "services/api", "workspace": "production"},
	})
	require.True(t, res.OK(), "error: %v", res.Error)
	assert.Equal(t, float64(5), res.Output["replicas"])
	assert.Equal(t, "https://api.internal", res.Output["endpoint"])
	assert.Equal(t, sensitiveValue, res.Output["db_password"])
	assert.Equal(t, "production", res.Output["workspace"])

	assert.Equal(t, []string{"init", "workspace", "output"}, r.Subcommands())
	for _, c := range r.Calls() {
		assert.Equal(t, "/srv/terraform/services/api", c.Dir)
	}
}

func TestHandler_Execute_ApplyWritesVarFile(t *testing.T) {
	var varFile []byte
	r := &capturingRunner{
		ScriptedRunner: runner.NewScriptedRunner().
			On(runner.Reply{Stdout: "Apply complete! Resources: 0 added, 1 changed, 0 destroyed."}, "apply").
			On(runner.Reply{Stdout: `{"replicas": {"value": 3}}`}, "output", "-json"),
		onApply: func(cmd runner.Command) {
			for _, a := range cmd.Args {
				if strings.HasPrefix(a, "-var-file=") {
					varFile, _ = os.ReadFile(strings.TrimPrefix(a, "-var-file="))
				}
			}
		},
	}
	h := newTestHandler(t, r)

	out, err := h.Execute(context.Background(), &Input{
		Action: ActionApply,
		Vars:   map[string]string{"replicas": "3", "service": "api"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out["changed"])
	assert.Equal(t, float64(3), out["replicas"])

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal(varFile, &vars))
	assert.Equal(t, float64(3), vars["replicas"])
	assert.Equal(t, "api", vars["service"])

	calls := r.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[1].Args, "-auto-approve")
}

type capturingRunner struct {
	*runner.ScriptedRunner
	onApply func(runner.Command)
}

func (c *capturingRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	if len(cmd.Args) > 0 && cmd.Args[0] == ActionApply {
		c.onApply(cmd)
	}
	return c.ScriptedRunner.Run(ctx, cmd)
}

func TestHandler_Execute_PlanAndState(t *testing.T) {
	r := runner.NewScriptedRunner().
		On(runner.Reply{Stdout: "Plan: 2 to add, 1 to change, 0 to destroy."}, "plan").
		On(runner.Reply{Stdout: "aws_instance.api[0]\naws_instance.api[1]\n\n"}, "state", "list")
	h := newTestHandler(t, r)

	out, err := h.Execute(context.Background(), &Input{Action: ActionPlan, Target: "module.api"})
	require.NoError(t, err)
	assert.Equal(t, 2, out["add"])
	assert.Equal(t, 1, out["change"])
	assert.Equal(t, true, out["has_changes"])
	assert.Contains(t, r.Calls()[1].Args, "-target=module.api")

	out, err = h.Execute(context.Background(), &Input{Action: ActionState})
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])
	assert.Equal(t, []interface{}{"aws_instance.api[0]", "aws_instance.api[1]"}, out["resources"])
}

func TestHandler_Execute_WorkspaceCreatedWhenMissing(t *testing.T) {
	r := runner.NewScriptedRunner().
		On(runner.Reply{ExitCode: 1, Stderr: "Workspace \"qa\" doesn't exist."}, "workspace", "select")
	h := newTestHandler(t, r)

	_, err := h.Execute(context.Background(), &Input{Action: ActionValidate, Workspace: "qa"})
	require.NoError(t, err)

	var args []string
	for _, c := range r.Calls() {
		args = append(args, strings.Join(c.Args, " "))
	}
	assert.Contains(t, args, "workspace new qa")
}

func TestHandler_Run_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		runner *runner.ScriptedRunner
		params map[string]string
		kind   workflow.ErrorKind
	}{
		{"invalid action", runner.NewScriptedRunner(), map[string]string{"action": "import"}, workflow.ErrorInvalidInput},
		{"init fails", runner.NewScriptedRunner().On(runner.Reply{ExitCode: 1, Stderr: "backend error"}, "init"), map[string]string{"action": "plan"}, workflow.ErrorExternalFailure},
		{"garbled outputs", runner.NewScriptedRunner().On(runner.Reply{Stdout: "not json"}, "output"), map[string]string{"action": "output"}, workflow.ErrorInvalidOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestHandler(t, tt.runner).Run(context.Background(), &workflow.StepRequest{Parameters: tt.params})
			require.False(t, res.OK())
			assert.Equal(t, tt.kind, res.Error.Kind)
		})
	}
}

func TestParseApply(t *testing.T) {
	assert.Equal(t, PlanSummary{Add: 1, Change: 2, Destroy: 3}, parseApply("Apply complete! Resources: 1 added, 2 changed, 3 destroyed."))
	assert.Equal(t, PlanSummary{Destroy: 4}, parseApply("Destroy complete! Resources: 4 destroyed."))
	assert.Equal(t, PlanSummary{}, parsePlan("No changes. Your infrastructure matches the configuration."))
}
