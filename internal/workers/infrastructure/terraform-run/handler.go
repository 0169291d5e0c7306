// internal/workers/infrastructure/terraform-run/handler.go
package terraformrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/runner"
	"infra-chatops/internal/workflow"
)

const (
	TaskType = "terraform-run"
)

var (
	ErrInvalidAction  = errors.New("INVALID_ACTION")
	ErrCommandFailed  = errors.New("TERRAFORM_COMMAND_FAILED")
	ErrOutputParse    = errors.New("TERRAFORM_OUTPUT_PARSE_FAILED")
	ErrWorkspaceError = errors.New("TERRAFORM_WORKSPACE_FAILED")
)

const sensitiveValue = "(sensitive)"

var (
	planPattern    = regexp.MustCompile(`Plan: (\d+) to add, (\d+) to change, (\d+) to destroy`)
	applyPattern   = regexp.MustCompile(`Apply complete! Resources: (\d+) added, (\d+) changed, (\d+) destroyed`)
	destroyPattern = regexp.MustCompile(`Destroy complete! Resources: (\d+) destroyed`)
)

type Handler struct {
	config *Config
	runner runner.CommandRunner
	logger logger.Logger
}

func NewHandler(config *Config, r runner.CommandRunner, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		runner: r,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	input := &Input{
		Action:    req.Param("action", ActionPlan),
		Workspace: req.Parameters["workspace"],
		VarFile:   req.Parameters["var_file"],
		Vars:      req.Prefixed("vars"),
		Dir:       req.Parameters["dir"],
		Target:    req.Parameters["target"],
	}

	output, err := h.Execute(ctx, input)
	switch {
	case err == nil:
		return workflow.Ok(output)
	case errors.Is(err, ErrInvalidAction):
		return workflow.Fail(workflow.ErrorInvalidInput, "%v", err)
	case errors.Is(err, ErrOutputParse):
		return workflow.Fail(workflow.ErrorInvalidOutput, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return workflow.Fail(workflow.ErrorTimeout, "%v", err)
	default:
		return workflow.Fail(workflow.ErrorExternalFailure, "%v", err)
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (Output, error) {
	if !validAction(input.Action) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, input.Action)
	}

	dir := h.dir(input.Dir)
	log := h.logger.WithFields(map[string]interface{}{"action": input.Action, "dir": dir})

	if _, err := h.terraform(ctx, dir, "init", "-input=false", "-no-color"); err != nil {
		return nil, err
	}
	if input.Action == ActionInit {
		return Output{"action": input.Action, "initialized": true}, nil
	}

	if input.Workspace != "" {
		if err := h.selectWorkspace(ctx, dir, input.Workspace); err != nil {
			return nil, err
		}
	}

	varArgs, cleanup, err := h.varArgs(input)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out := Output{"action": input.Action}
	if input.Workspace != "" {
		out["workspace"] = input.Workspace
	}

	switch input.Action {
	case ActionPlan:
		res, err := h.terraform(ctx, dir, h.withTarget(append([]string{"plan", "-input=false", "-no-color"}, varArgs...), input)...)
		if err != nil {
			return nil, err
		}
		summary := parsePlan(res.Stdout)
		out["add"], out["change"], out["destroy"] = summary.Add, summary.Change, summary.Destroy
		out["has_changes"] = summary != (PlanSummary{})

	case ActionApply, ActionDestroy:
		args := append([]string{input.Action, "-input=false", "-no-color", "-auto-approve"}, varArgs...)
		res, err := h.terraform(ctx, dir, h.withTarget(args, input)...)
		if err != nil {
			return nil, err
		}
		summary := parseApply(res.Stdout)
		out["added"], out["changed"], out["destroyed"] = summary.Add, summary.Change, summary.Destroy
		if input.Action == ActionApply {
			outputs, err := h.outputs(ctx, dir)
			if err != nil {
				log.Warn("reading outputs after apply failed", map[string]interface{}{"error": err})
			}
			for k, v := range outputs {
				if _, reserved := out[k]; !reserved {
					out[k] = v
				}
			}
		}

	case ActionOutput:
		outputs, err := h.outputs(ctx, dir)
		if err != nil {
			return nil, err
		}
		for k, v := range outputs {
			if _, reserved := out[k]; !reserved {
				out[k] = v
			}
		}

	case ActionState:
		res, err := h.terraform(ctx, dir, "state", "list")
		if err != nil {
			return nil, err
		}
		resources := []interface{}{}
		for _, line := range strings.Split(res.Stdout, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				resources = append(resources, line)
			}
		}
		out["resources"] = resources
		out["count"] = len(resources)

	case ActionValidate:
		if _, err := h.terraform(ctx, dir, "validate", "-no-color"); err != nil {
			return nil, err
		}
		out["valid"] = true

	case ActionRefresh:
		if _, err := h.terraform(ctx, dir, append([]string{"refresh", "-input=false", "-no-color"}, varArgs...)...); err != nil {
			return nil, err
		}
		out["refreshed"] = true
	}

	log.Info("terraform action completed", nil)
	return out, nil
}

func validAction(a string) bool {
	switch a {
	case ActionInit, ActionPlan, ActionApply, ActionOutput, ActionState, ActionDestroy, ActionValidate, ActionRefresh:
		return true
	}
	return false
}

func (h *Handler) dir(d string) string {
	switch {
	case d == "":
		return h.config.WorkingDir
	case filepath.IsAbs(d) || h.config.WorkingDir == "":
		return d
	default:
		return filepath.Join(h.config.WorkingDir, d)
	}
}

func (h *Handler) withTarget(args []string, input *Input) []string {
	if input.Target != "" {
		args = append(args, "-target="+input.Target)
	}
	return args
}

func (h *Handler) terraform(ctx context.Context, dir string, args ...string) (*runner.Result, error) {
	cmd := runner.Command{
		Name: h.config.Binary,
		Args: args,
		Dir:  dir,
		Env:  []string{"TF_IN_AUTOMATION=1", "TF_INPUT=0"},
	}
	h.logger.Debug("running terraform", map[string]interface{}{"command": cmd.String()})

	res, err := h.runner.Run(ctx, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("terraform %s: %w", args[0], ctxErr)
		}
		return nil, fmt.Errorf("%w: terraform %s: %v", ErrCommandFailed, args[0], err)
	}
	return res, nil
}

func (h *Handler) selectWorkspace(ctx context.Context, dir, name string) error {
	if _, err := h.terraform(ctx, dir, "workspace", "select", name); err == nil {
		return nil
	}
	if _, err := h.terraform(ctx, dir, "workspace", "new", name); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWorkspaceError, name, err)
	}
	return nil
}

// varArgs writes vars.* to a temporary tfvars file so values never appear on
// the command line.
func (h *Handler) varArgs(input *Input) ([]string, func(), error) {
	var args []string
	cleanup := func() {}

	if input.VarFile != "" {
		args = append(args, "-var-file="+input.VarFile)
	}
	if len(input.Vars) == 0 {
		return args, cleanup, nil
	}

	vars := make(map[string]interface{}, len(input.Vars))
	for k, v := range input.Vars {
		vars[k] = typedVar(v)
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, cleanup, fmt.Errorf("encode vars: %w", err)
	}

	f, err := os.CreateTemp("", "chatops-*.tfvars.json")
	if err != nil {
		return nil, cleanup, fmt.Errorf("create vars file: %w", err)
	}
	cleanup = func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return nil, func() {}, fmt.Errorf("write vars file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("write vars file: %w", err)
	}
	return append(args, "-var-file="+f.Name()), cleanup, nil
}

// typedVar keeps numbers and booleans typed in the tfvars file.
func typedVar(v string) interface{} {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil && (v == "true" || v == "false") {
		return b
	}
	return v
}

func (h *Handler) outputs(ctx context.Context, dir string) (map[string]interface{}, error) {
	res, err := h.terraform(ctx, dir, "output", "-json")
	if err != nil {
		return nil, err
	}
	return parseOutputs(res.Stdout)
}

func parseOutputs(stdout string) (map[string]interface{}, error) {
	raw := map[string]outputValue{}
	if strings.TrimSpace(stdout) == "" {
		return map[string]interface{}{}, nil
	}
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputParse, err)
	}
	out := make(map[string]interface{}, len(raw))
	for name, v := range raw {
		if v.Sensitive {
			out[name] = sensitiveValue
			continue
		}
		out[name] = v.Value
	}
	return out, nil
}

func parsePlan(stdout string) PlanSummary {
	m := planPattern.FindStringSubmatch(stdout)
	if m == nil {
		return PlanSummary{}
	}
	return PlanSummary{Add: atoi(m[1]), Change: atoi(m[2]), Destroy: atoi(m[3])}
}

func parseApply(stdout string) PlanSummary {
	if m := applyPattern.FindStringSubmatch(stdout); m != nil {
		return PlanSummary{Add: atoi(m[1]), Change: atoi(m[2]), Destroy: atoi(m[3])}
	}
	if m := destroyPattern.FindStringSubmatch(stdout); m != nil {
		return PlanSummary{Destroy: atoi(m[1])}
	}
	return PlanSummary{}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
