package interpreter

import (
	"errors"
	"fmt"
	"sort"
)

// SelfTestFailure describes an example utterance the interpreter got wrong.
type SelfTestFailure struct {
	Intent  string
	Text    string
	Problem string
}

// SelfTest interprets every example of every intent and checks the intent
// and the listed parameters.
func (in *Interpreter) SelfTest() []SelfTestFailure {
	var failures []SelfTestFailure
	for _, intent := range in.library.Intents() {
		for _, ex := range intent.Examples {
			cmd, err := in.Interpret(ex.Text)
			if err != nil {
				var rej *Rejection
				problem := err.Error()
				if errors.As(err, &rej) {
					problem = fmt.Sprintf("rejected: %s", rej.Reason)
				}
				failures = append(failures, SelfTestFailure{Intent: intent.Name, Text: ex.Text, Problem: problem})
				continue
			}
			if cmd.Intent != intent.Name {
				failures = append(failures, SelfTestFailure{
					Intent:  intent.Name,
					Text:    ex.Text,
					Problem: fmt.Sprintf("matched intent %q", cmd.Intent),
				})
				continue
			}
			slots := make([]string, 0, len(ex.Parameters))
			for slot := range ex.Parameters {
				slots = append(slots, slot)
			}
			sort.Strings(slots)
			for _, slot := range slots {
				want := ex.Parameters[slot]
				if got := cmd.Parameters[slot]; got != want {
					failures = append(failures, SelfTestFailure{
						Intent:  intent.Name,
						Text:    ex.Text,
						Problem: fmt.Sprintf("parameter %s = %q, want %q", slot, got, want),
					})
				}
			}
		}
	}
	return failures
}
