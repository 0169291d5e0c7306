// internal/workers/runtime/condition-eval/handler.go
package conditioneval

import (
	"context"
	"errors"
	"fmt"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/workflow"
)

const (
	TaskType = "condition-eval"
)

var (
	ErrInvalidOperator = errors.New("INVALID_OPERATOR")
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

// Run adapts the engine's step request to Execute.
func (h *Handler) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	input := &Input{
		Left:     req.Parameters["left"],
		Operator: req.Parameters["operator"],
		Right:    req.Parameters["right"],
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return workflow.Fail(workflow.ErrorInvalidInput, "%v", err)
	}

	out, err := workflow.OutputOf(output)
	if err != nil {
		return workflow.Fail(workflow.ErrorInvalidOutput, "encode output: %v", err)
	}
	return workflow.Ok(out)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	op, err := workflow.ParseOperator(input.Operator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperator, err)
	}

	result, err := workflow.Compare(input.Left, op, input.Right)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperator, err)
	}
	branch := BranchElse
	if result {
		branch = BranchThen
	}

	h.logger.Debug("condition evaluated", map[string]interface{}{
		"left":     input.Left,
		"operator": op,
		"right":    input.Right,
		"result":   result,
	})

	return &Output{
		Result:   result,
		Left:     input.Left,
		Operator: string(op),
		Right:    input.Right,
		Branch:   branch,
	}, nil
}
