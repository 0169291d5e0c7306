package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Operator string

const (
	OpEqual       Operator = "eq"
	OpNotEqual    Operator = "ne"
	OpGreater     Operator = "gt"
	OpLess        Operator = "lt"
	OpGreaterEq   Operator = "ge"
	OpLessEq      Operator = "le"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

var ErrUnknownOperator = errors.New("unknown operator")

func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEq, OpLessEq, OpContains, OpNotContains:
		return op, nil
	case "":
		return OpEqual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// Compare applies op to left and right. Ordering operators compare
// numerically when both sides parse as numbers and lexically otherwise.
func Compare(left string, op Operator, right string) (bool, error) {
	lf, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
	rf, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
	numeric := lerr == nil && rerr == nil

	cmp := strings.Compare(left, right)
	if numeric {
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		default:
			cmp = 0
		}
	}

	switch op {
	case OpEqual:
		return cmp == 0, nil
	case OpNotEqual:
		return cmp != 0, nil
	case OpGreater:
		return cmp > 0, nil
	case OpLess:
		return cmp < 0, nil
	case OpGreaterEq:
		return cmp >= 0, nil
	case OpLessEq:
		return cmp <= 0, nil
	case OpContains:
		return strings.Contains(left, right), nil
	case OpNotContains:
		return !strings.Contains(left, right), nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

// Operands resolves the two sides of the condition. A result condition
// becomes "<did step K succeed> eq true".
func (c *ConditionSpec) Operands(scope Scope) (left string, op Operator, right string, err error) {
	if c.Kind == ConditionResult {
		ok := false
		if scope.Ledger != nil {
			entry, found := scope.Ledger.Get(c.Step)
			ok = found && entry.Status == StatusOk
		}
		return strconv.FormatBool(ok), OpEqual, "true", nil
	}

	if left, err = c.left.Render(scope); err != nil {
		return "", "", "", err
	}
	if right, err = c.right.Render(scope); err != nil {
		return "", "", "", err
	}
	return left, c.Operator, right, nil
}

// Evaluate resolves and compares the condition.
func (c *ConditionSpec) Evaluate(scope Scope) (bool, error) {
	left, op, right, err := c.Operands(scope)
	if err != nil {
		return false, err
	}
	return Compare(left, op, right)
}

func (c *ConditionSpec) compile() error {
	switch c.Kind {
	case ConditionResult:
		if c.Step < 1 {
			return fmt.Errorf("result condition needs a step number")
		}
		return nil
	case ConditionParameter:
	default:
		return fmt.Errorf("unknown condition type %q", c.Kind)
	}

	if c.Parameter == "" {
		return fmt.Errorf("parameter condition needs a parameter")
	}
	op, err := ParseOperator(string(c.Operator))
	if err != nil {
		return err
	}
	c.Operator = op

	ref, err := parseReference(strings.TrimSuffix(strings.TrimPrefix(c.Parameter, "${"), "}"))
	if err != nil {
		return err
	}
	c.left = Expression{raw: ref.String(), segments: []segment{{ref: &ref}}}

	if c.right, err = ParseExpression(c.Value); err != nil {
		return err
	}
	return nil
}

// References lists the placeholders the condition depends on.
func (c *ConditionSpec) References() []Reference {
	if c.Kind == ConditionResult {
		return []Reference{{Name: fmt.Sprintf("step%d_output", c.Step), Step: c.Step}}
	}
	return append(c.left.References(), c.right.References()...)
}
