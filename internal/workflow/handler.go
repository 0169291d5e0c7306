package workflow

import (
	"context"
	"encoding/json"
)

// Snapshot is the read-only view of a run handed to script steps.
type Snapshot struct {
	Parameters map[string]string
	Steps      map[int]map[string]interface{}
}

// StepRequest is what the engine hands a step handler.
type StepRequest struct {
	InstanceID string
	Workflow   string
	Step       string
	Position   int
	Type       StepType
	Parameters map[string]string
	Snapshot   Snapshot
}

// Param returns a parameter or fallback when it is missing or empty.
func (r *StepRequest) Param(key, fallback string) string {
	if v, ok := r.Parameters[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Prefixed collects the dotted parameters under prefix with the prefix removed:
// vars.replicas becomes replicas.
func (r *StepRequest) Prefixed(prefix string) map[string]string {
	out := make(map[string]string)
	p := prefix + "."
	for k, v := range r.Parameters {
		if len(k) > len(p) && k[:len(p)] == p {
			out[k[len(p):]] = v
		}
	}
	return out
}

// Handler runs one step type. Implementations always return a result, never
// nil, and report failures through the result rather than by panicking.
type Handler interface {
	Run(ctx context.Context, req *StepRequest) *StepResult
}

type HandlerFunc func(ctx context.Context, req *StepRequest) *StepResult

func (f HandlerFunc) Run(ctx context.Context, req *StepRequest) *StepResult { return f(ctx, req) }

// OutputOf converts a handler's typed output into the generic ledger form
// by round-tripping it through JSON, so numbers become float64 exactly as
// they would for output read from an external tool.
func OutputOf(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
