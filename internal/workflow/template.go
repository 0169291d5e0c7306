// Package workflow holds the declarative workflow model shared by the mapper,
// the engine and the step handlers: templates, instances, the ledger and the
// interpolation grammar.
package workflow

import "time"

type StepType string

const (
	StepTerraform    StepType = "terraform"
	StepAnsible      StepType = "ansible"
	StepJenkins      StepType = "jenkins"
	StepScript       StepType = "script"
	StepNotification StepType = "notification"
	StepCondition    StepType = "condition"
)

var knownStepTypes = []StepType{
	StepTerraform, StepAnsible, StepJenkins, StepScript, StepNotification, StepCondition,
}

func KnownStepTypes() []StepType { return append([]StepType(nil), knownStepTypes...) }

func (t StepType) Valid() bool {
	for _, k := range knownStepTypes {
		if t == k {
			return true
		}
	}
	return false
}

type ConditionKind string

const (
	ConditionParameter ConditionKind = "parameter"
	ConditionResult    ConditionKind = "result"
)

// ConditionSpec is either a parameter comparison or a check that an earlier
// step succeeded. Parameter may name a command parameter or a step output
// reference such as step1_output.count.
type ConditionSpec struct {
	Kind      ConditionKind `yaml:"type" json:"type"`
	Parameter string        `yaml:"parameter,omitempty" json:"parameter,omitempty"`
	Operator  Operator      `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value     string        `yaml:"value,omitempty" json:"value,omitempty"`
	Step      int           `yaml:"step,omitempty" json:"step,omitempty"`

	left  Expression
	right Expression
}

// StepSpec is one node of the step tree. A node with Then or Else branches is
// always a condition step.
type StepSpec struct {
	Name       string            `json:"name"`
	Type       StepType          `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Condition  *ConditionSpec    `json:"condition,omitempty"`
	Then       []*StepSpec       `json:"then,omitempty"`
	Else       []*StepSpec       `json:"else,omitempty"`
	BestEffort bool              `json:"best_effort,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`

	// Position is the 1-based pre-order index used by ${stepN_output} and
	// result conditions.
	Position int `json:"position"`

	compiled map[string]Expression
}

func (s *StepSpec) HasBranches() bool { return len(s.Then) > 0 || len(s.Else) > 0 }

// Compiled returns the parsed parameter templates.
func (s *StepSpec) Compiled() map[string]Expression { return s.compiled }

// Notify designates the terminal notification steps.
type Notify struct {
	Success *StepSpec `json:"success,omitempty"`
	Failure *StepSpec `json:"failure,omitempty"`
}

// Template is an immutable workflow definition shared by every instance
// created from it.
type Template struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Steps       []*StepSpec `json:"steps"`
	Notify      Notify      `json:"notify"`
	Source      string      `json:"-"`

	size int
}

// StepCount is the number of nodes in the step tree, excluding terminal
// notifications.
func (t *Template) StepCount() int { return t.size }

// TerminalPosition is the ledger position of the terminal notification.
func (t *Template) TerminalPosition() int { return t.size + 1 }

// Walk visits every step node in pre-order, then the terminal steps.
func (t *Template) Walk(fn func(*StepSpec)) {
	walkSteps(t.Steps, fn)
	if t.Notify.Success != nil {
		fn(t.Notify.Success)
	}
	if t.Notify.Failure != nil {
		fn(t.Notify.Failure)
	}
}

func walkSteps(steps []*StepSpec, fn func(*StepSpec)) {
	for _, s := range steps {
		fn(s)
		walkSteps(s.Then, fn)
		walkSteps(s.Else, fn)
	}
}

// number assigns pre-order positions and returns the next free one.
func number(steps []*StepSpec, next int) int {
	for _, s := range steps {
		s.Position = next
		next = number(s.Then, next+1)
		next = number(s.Else, next)
	}
	return next
}

// StepNames lists the names of steps in the subtree rooted at steps.
func StepNames(steps []*StepSpec) []string {
	var out []string
	walkSteps(steps, func(s *StepSpec) { out = append(out, s.Name) })
	return out
}
