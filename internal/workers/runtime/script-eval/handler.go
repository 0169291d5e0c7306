// internal/workers/runtime/script-eval/handler.go
package scripteval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/workflow"

	"github.com/expr-lang/expr"
)

const (
	TaskType = "script-eval"
)

var (
	ErrCompile    = errors.New("SCRIPT_COMPILE_FAILED")
	ErrEvaluation = errors.New("SCRIPT_EVALUATION_FAILED")
	ErrNotAMap    = errors.New("SCRIPT_RESULT_NOT_A_MAP")
	ErrEmpty      = errors.New("SCRIPT_EMPTY")
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	input := &Input{
		Expression: req.Parameters["expression"],
		Set:        req.Prefixed("set"),
		Params:     req.Snapshot.Parameters,
		Steps:      req.Snapshot.Steps,
	}

	output, err := h.Execute(ctx, input)
	switch {
	case errors.Is(err, ErrNotAMap):
		return workflow.Fail(workflow.ErrorInvalidOutput, "%v", err)
	case err != nil:
		return workflow.Fail(workflow.ErrorInvalidInput, "%v", err)
	}
	return workflow.Ok(output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (Output, error) {
	if input.Expression == "" && len(input.Set) == 0 {
		return nil, ErrEmpty
	}

	env := h.environment(input)
	out := Output{}

	if input.Expression != "" {
		v, err := h.eval(input.Expression, env)
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: expression returned %T", ErrNotAMap, v)
		}
		for k, val := range m {
			out[k] = val
		}
	}

	fields := make([]string, 0, len(input.Set))
	for field := range input.Set {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := h.eval(input.Set[field], env)
		if err != nil {
			return nil, fmt.Errorf("set.%s: %w", field, err)
		}
		out[field] = v
	}

	h.logger.Debug("script evaluated", map[string]interface{}{"fields": len(out)})
	return out, nil
}

// environment exposes the instance parameters as params, every successful
// step output as steps[N] and as stepN.
func (h *Handler) environment(input *Input) map[string]interface{} {
	params := make(map[string]string, len(input.Params))
	for k, v := range input.Params {
		params[k] = v
	}

	steps := make(map[int]map[string]interface{}, len(input.Steps))
	env := map[string]interface{}{
		"params": params,
		"steps":  steps,
	}
	for n, out := range input.Steps {
		steps[n] = out
		env["step"+strconv.Itoa(n)] = out
	}
	return env
}

func (h *Handler) eval(source string, env map[string]interface{}) (interface{}, error) {
	opts := []expr.Option{expr.Env(env), expr.DisableAllBuiltins()}
	for _, name := range h.config.Builtins {
		opts = append(opts, expr.EnableBuiltin(name))
	}

	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	v, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}
	return v, nil
}
