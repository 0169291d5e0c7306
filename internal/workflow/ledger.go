package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the outcome of a single step.
type Status string

const (
	StatusOk    Status = "ok"
	StatusError Status = "error"
)

// ErrorKind classifies a failed step.
type ErrorKind string

const (
	ErrorTimeout              ErrorKind = "Timeout"
	ErrorExternalFailure      ErrorKind = "ExternalFailure"
	ErrorInvalidOutput        ErrorKind = "InvalidOutput"
	ErrorInvalidInput         ErrorKind = "InvalidInput"
	ErrorInterpolationFailure ErrorKind = "InterpolationFailure"
	ErrorCancelled            ErrorKind = "Cancelled"
)

type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ErrorInfo) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// StepResult is one ledger entry. Index is the step's position in the
// workflow, not its position in the ledger.
type StepResult struct {
	Index     int                    `json:"index"`
	Step      string                 `json:"step"`
	Type      StepType               `json:"type"`
	Status    Status                 `json:"status"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Error     *ErrorInfo             `json:"error,omitempty"`
	StartedAt time.Time              `json:"started_at"`
	Duration  time.Duration          `json:"duration"`
}

func (r *StepResult) OK() bool { return r != nil && r.Status == StatusOk }

// Message is the human readable outcome used in summaries.
func (r *StepResult) Message() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: %s", r.Error.Kind, r.Error.Message)
	}
	if msg, ok := r.Output["message"].(string); ok && msg != "" {
		return msg
	}
	return "completed"
}

// Ok builds a successful result. A nil output becomes an empty map.
func Ok(output map[string]interface{}) *StepResult {
	if output == nil {
		output = map[string]interface{}{}
	}
	return &StepResult{Status: StatusOk, Output: output}
}

// Fail builds a failed result of the given kind.
func Fail(kind ErrorKind, format string, args ...interface{}) *StepResult {
	return &StepResult{
		Status: StatusError,
		Error:  &ErrorInfo{Kind: kind, Message: fmt.Sprintf(format, args...)},
	}
}

// FailWithOutput is Fail with a partial output, e.g. the Jenkins build URL of a
// failed build.
func FailWithOutput(kind ErrorKind, output map[string]interface{}, format string, args ...interface{}) *StepResult {
	r := Fail(kind, format, args...)
	r.Output = output
	return r
}

var ErrLedgerOrder = errors.New("ledger entries must be appended in increasing step order")

// Ledger is the append-only record of one instance's step results. Only the
// instance's driving goroutine appends; readers take copies.
type Ledger struct {
	mu      sync.RWMutex
	entries []StepResult
	byIndex map[int]int
}

func NewLedger() *Ledger {
	return &Ledger{byIndex: make(map[int]int)}
}

// Append records r. Each position is written at most once and positions must
// strictly increase.
func (l *Ledger) Append(r *StepResult) error {
	if r == nil {
		return errors.New("nil step result")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Index < 1 {
		return fmt.Errorf("%w: invalid position %d", ErrLedgerOrder, r.Index)
	}
	if n := len(l.entries); n > 0 && l.entries[n-1].Index >= r.Index {
		return fmt.Errorf("%w: position %d after %d", ErrLedgerOrder, r.Index, l.entries[n-1].Index)
	}
	entry := *r
	entry.Output = copyOutput(r.Output)
	l.byIndex[r.Index] = len(l.entries)
	l.entries = append(l.entries, entry)
	return nil
}

// Get returns the result recorded for a step position.
func (l *Ledger) Get(index int) (StepResult, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byIndex[index]
	if !ok {
		return StepResult{}, false
	}
	return l.entries[i], true
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the ledger in execution order.
func (l *Ledger) Entries() []StepResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]StepResult(nil), l.entries...)
}

// Outputs maps every successful position to its output.
func (l *Ledger) Outputs() map[int]map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int]map[string]interface{}, len(l.entries))
	for _, e := range l.entries {
		if e.Status == StatusOk {
			out[e.Index] = copyOutput(e.Output)
		}
	}
	return out
}

func copyOutput(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
