// internal/workers/runtime/condition-eval/handler_test.go
package conditioneval

import (
	"context"
	"errors"
	"testing"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewTestLogger(t))

	tests := []struct {
		name   string
		input  Input
		result bool
		branch string
	}{
		{"string equal", Input{"production", "eq", "production"}, true, BranchThen},
		{"string not equal", Input{"staging", "eq", "production"}, false, BranchElse},
		{"numeric greater", Input{"10", "gt", "9"}, true, BranchThen},
		{"numeric not lexical", Input{"10", "lt", "9"}, false, BranchElse},
		{"contains", Input{"api-gateway", "contains", "api"}, true, BranchThen},
		{"not contains", Input{"worker", "not_contains", "api"}, true, BranchThen},
		{"empty operator defaults to eq", Input{"a", "", "a"}, true, BranchThen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			out, err := h.Execute(context.Background(), &input)
			require.NoError(t, err)
			assert.Equal(t, tt.result, out.Result)
			assert.Equal(t, tt.branch, out.Branch)
		})
	}
}

func TestHandler_Execute_InvalidOperator(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{Left: "1", Operator: "approx", Right: "1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOperator))
}

func TestHandler_Run(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewTestLogger(t))

	res := h.Run(context.Background(), &workflow.StepRequest{
		Step:       "check_env",
		Type:       workflow.StepCondition,
		Parameters: map[string]string{"left": "production", "operator": "eq", "right": "production"},
	})
	require.True(t, res.OK())
	assert.Equal(t, true, res.Output["result"])
	assert.Equal(t, "eq", res.Output["operator"])
	assert.Equal(t, BranchThen, res.Output["branch"])

	res = h.Run(context.Background(), &workflow.StepRequest{
		Parameters: map[string]string{"left": "1", "operator": "~=", "right": "1"},
	})
	require.False(t, res.OK())
	assert.Equal(t, workflow.ErrorInvalidInput, res.Error.Kind)
}
