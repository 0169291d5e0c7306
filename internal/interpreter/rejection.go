package interpreter

import (
	"fmt"
	"strings"

	"infra-chatops/internal/catalog"
)

// RejectionReason classifies why text did not become a Command.
type RejectionReason string

const (
	ReasonNoMatch             RejectionReason = "NoMatch"
	ReasonBelowThreshold      RejectionReason = "BelowThreshold"
	ReasonMissingRequiredSlot RejectionReason = "MissingRequiredSlot"
)

// Rejection is returned as the error of Interpret. Message is meant for the
// operator; UnknownValues lists strict slot values that did not resolve.
type Rejection struct {
	Reason        RejectionReason   `json:"reason"`
	BestGuess     string            `json:"bestGuess,omitempty"`
	Confidence    float64           `json:"confidence"`
	MissingSlots  []string          `json:"missingSlots,omitempty"`
	UnknownValues map[string]string `json:"unknownValues,omitempty"`
	Message       string            `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("command rejected (%s): %s", r.Reason, r.Message)
}

func newNoMatch() *Rejection {
	return &Rejection{
		Reason:  ReasonNoMatch,
		Message: "I don't understand that command. Type 'help' to see what I can do.",
	}
}

func newBelowThreshold(bestGuess string, confidence, threshold float64) *Rejection {
	return &Rejection{
		Reason:     ReasonBelowThreshold,
		BestGuess:  bestGuess,
		Confidence: confidence,
		Message: fmt.Sprintf(
			"I'm not sure what you mean (confidence %.2f, need %.2f). Did you mean '%s'? Type 'help %s' for usage.",
			confidence, threshold, bestGuess, bestGuess,
		),
	}
}

func newMissingRequiredSlot(intent *catalog.IntentDefinition, missing []string, confidence float64) *Rejection {
	msg := fmt.Sprintf("The '%s' command needs: %s.", intent.Name, strings.Join(missing, ", "))
	if len(intent.Examples) > 0 {
		msg += fmt.Sprintf(" Example: %s", intent.Examples[0].Text)
	}
	return &Rejection{
		Reason:       ReasonMissingRequiredSlot,
		BestGuess:    intent.Name,
		Confidence:   confidence,
		MissingSlots: append([]string(nil), missing...),
		Message:      msg,
	}
}

// addUnknown names the strict slot values that kept the best guess below
// the threshold.
func (r *Rejection) addUnknown(intent *catalog.IntentDefinition, unknown []capture) {
	if len(unknown) == 0 {
		return
	}
	r.UnknownValues = make(map[string]string, len(unknown))
	parts := make([]string, 0, len(unknown))
	for _, cp := range unknown {
		r.UnknownValues[cp.slot] = cp.raw
		entity := cp.slot
		if spec, ok := intent.Slot(cp.slot); ok {
			entity = string(spec.EntityType)
		}
		parts = append(parts, fmt.Sprintf("%s '%s'", entity, cp.raw))
	}
	r.Message = fmt.Sprintf("I don't know the %s. %s", strings.Join(parts, " or the "), r.Message)
}
