package workflow

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StatePending         State = "pending"
	StateRunning         State = "running"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
	StatePartiallyFailed State = "partially_failed"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StatePartiallyFailed
}

var ErrInvalidTransition = errors.New("invalid state transition")

// Run facts are added to the parameter environment of terminal notification
// steps. Intents may not declare slots with these names.
const (
	FactFailedStep   = "failed_step"
	FactErrorKind    = "error_kind"
	FactErrorMessage = "error_message"
	FactStatus       = "status"
	FactWorkflow     = "workflow"
	FactInstanceID   = "instance_id"
)

func ReservedNames() []string {
	return []string{FactFailedStep, FactErrorKind, FactErrorMessage, FactStatus, FactWorkflow, FactInstanceID}
}

// Instance is a template bound to one command's parameters. The template is
// shared; the parameters and ledger belong to this instance alone.
type Instance struct {
	ID         string
	Template   *Template
	Intent     string
	Parameters map[string]string
	Ledger     *Ledger
	CreatedAt  time.Time

	mu        sync.Mutex
	state     State
	cancelled atomic.Bool
}

func NewInstance(t *Template, intent string, params map[string]string) *Instance {
	env := make(map[string]string, len(params))
	for k, v := range params {
		env[k] = v
	}
	return &Instance{
		ID:         uuid.New().String(),
		Template:   t,
		Intent:     intent,
		Parameters: env,
		Ledger:     NewLedger(),
		CreatedAt:  time.Now().UTC(),
		state:      StatePending,
	}
}

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Transition moves Pending to Running and Running to a terminal state.
// Terminal states are final.
func (i *Instance) Transition(to State) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch {
	case i.state == StatePending && to == StateRunning:
	case i.state == StateRunning && to.Terminal():
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.state, to)
	}
	i.state = to
	return nil
}

// Cancel asks the engine to stop before the next step. It reports false when
// the instance already finished.
func (i *Instance) Cancel() bool {
	if i.State().Terminal() {
		return false
	}
	i.cancelled.Store(true)
	return true
}

func (i *Instance) Cancelled() bool { return i.cancelled.Load() }
