package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidTemplate = errors.New("invalid workflow template")

// ValidationError collects every problem found in a template.
type ValidationError struct {
	Workflow string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %q: %s", e.Workflow, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidTemplate }

// Validate compiles the template strings of every step and checks the
// structural rules: steps only reference positions that precede them, branches
// hang off condition steps and terminal steps are notifications.
func Validate(t *Template) error {
	v := &validator{errs: &ValidationError{Workflow: t.Name}}

	if t.Name == "" {
		v.add("name is required")
	}
	if len(t.Steps) == 0 {
		v.add("at least one step is required")
	}

	walkSteps(t.Steps, func(s *StepSpec) { v.step(s, s.Position-1) })

	terminal := []struct {
		label string
		step  *StepSpec
	}{{"success", t.Notify.Success}, {"failure", t.Notify.Failure}}
	for _, n := range terminal {
		label, s := n.label, n.step
		if s == nil {
			continue
		}
		if s.Type != StepNotification {
			v.add(fmt.Sprintf("notify.%s must be a notification step", label))
		}
		if s.Condition != nil || s.HasBranches() {
			v.add(fmt.Sprintf("notify.%s cannot have a condition or branches", label))
		}
		v.step(s, t.StepCount())
	}

	if len(v.errs.Problems) > 0 {
		return v.errs
	}
	return nil
}

type validator struct {
	errs *ValidationError
}

func (v *validator) add(problem string) { v.errs.Problems = append(v.errs.Problems, problem) }

// step checks one node. maxRef is the highest position it may reference.
func (v *validator) step(s *StepSpec, maxRef int) {
	where := fmt.Sprintf("step %d %q", s.Position, s.Name)
	if s.Name == "" {
		v.add(fmt.Sprintf("step %d: name is required", s.Position))
	}
	if !s.Type.Valid() {
		v.add(fmt.Sprintf("%s: unknown step type %q", where, s.Type))
	}
	if s.HasBranches() && s.Type != StepCondition {
		v.add(fmt.Sprintf("%s: only condition steps can have then/else branches", where))
	}
	if s.Type == StepCondition && s.Condition == nil {
		v.add(fmt.Sprintf("%s: condition step without a condition", where))
	}

	if s.Condition != nil {
		if err := s.Condition.compile(); err != nil {
			v.add(fmt.Sprintf("%s: %v", where, err))
		} else {
			v.refs(where, s.Condition.References(), maxRef)
		}
	}

	keys := make([]string, 0, len(s.Parameters))
	for key := range s.Parameters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	s.compiled = make(map[string]Expression, len(s.Parameters))
	for _, key := range keys {
		expr, err := ParseExpression(s.Parameters[key])
		if err != nil {
			v.add(fmt.Sprintf("%s: parameter %s: %v", where, key, err))
			continue
		}
		s.compiled[key] = expr
		v.refs(where, expr.References(), maxRef)
	}
}

func (v *validator) refs(where string, refs []Reference, maxRef int) {
	for _, ref := range refs {
		if !ref.IsStep() {
			continue
		}
		if ref.Step > maxRef {
			v.add(fmt.Sprintf("%s: %s refers to a step that has not run yet", where, ref))
		}
	}
}

// ParameterNames lists the non-step references used anywhere in the step
// tree, and separately those used by the terminal steps.
func ParameterNames(t *Template) (steps, terminal []string) {
	seenSteps := map[string]bool{}
	seenTerminal := map[string]bool{}

	collect := func(s *StepSpec, seen map[string]bool, out *[]string) {
		var refs []Reference
		if s.Condition != nil {
			refs = append(refs, s.Condition.References()...)
		}
		for _, expr := range s.compiled {
			refs = append(refs, expr.References()...)
		}
		for _, r := range refs {
			if !r.IsStep() && !seen[r.Name] {
				seen[r.Name] = true
				*out = append(*out, r.Name)
			}
		}
	}

	walkSteps(t.Steps, func(s *StepSpec) { collect(s, seenSteps, &steps) })
	for _, s := range []*StepSpec{t.Notify.Success, t.Notify.Failure} {
		if s != nil {
			collect(s, seenTerminal, &terminal)
		}
	}
	sort.Strings(steps)
	sort.Strings(terminal)
	return steps, terminal
}
