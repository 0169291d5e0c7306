package workflow

import (
	"fmt"
	"strings"
	"time"
)

const ReasonCancelled = "cancelled"

// Report is the final, deterministic account of one run.
type Report struct {
	InstanceID   string            `json:"instance_id"`
	Workflow     string            `json:"workflow"`
	Intent       string            `json:"intent"`
	Status       State             `json:"status"`
	Reason       string            `json:"reason,omitempty"`
	Parameters   map[string]string `json:"parameters"`
	Ledger       []StepResult      `json:"ledger"`
	FinalMessage string            `json:"final_message"`
	Summary      string            `json:"summary"`
	FailedStep   string            `json:"failed_step,omitempty"`
	ErrorKind    ErrorKind         `json:"error_kind,omitempty"`
	Skipped      []string          `json:"skipped,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

func (r *Report) Terminal() bool { return r.Status.Terminal() }

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Progress builds a non-terminal report for an instance that is still running.
func Progress(inst *Instance) *Report {
	return &Report{
		InstanceID: inst.ID,
		Workflow:   inst.Template.Name,
		Intent:     inst.Intent,
		Status:     inst.State(),
		Parameters: inst.Parameters,
		Ledger:     inst.Ledger.Entries(),
		StartedAt:  inst.CreatedAt,
	}
}

// Summarize renders the per-step outcome text used when a workflow has no
// terminal notification.
func Summarize(workflow string, status State, entries []StepResult) string {
	var b strings.Builder
	switch status {
	case StateSucceeded:
		fmt.Fprintf(&b, "✅ Workflow '%s' completed successfully\n", workflow)
	case StatePartiallyFailed:
		fmt.Fprintf(&b, "⚠️ Workflow '%s' completed with failures\n", workflow)
	default:
		fmt.Fprintf(&b, "❌ Workflow '%s' failed\n", workflow)
	}

	if len(entries) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	b.WriteString("\nSteps:\n")
	for _, e := range entries {
		mark := "✅"
		if e.Status != StatusOk {
			mark = "❌"
		}
		fmt.Fprintf(&b, "  %s Step %d: %s (%s) - %s\n", mark, e.Index, e.Step, e.Type, e.Message())
	}
	return strings.TrimRight(b.String(), "\n")
}
