// Package interpreter turns free-form chat text into a typed Command by
// matching it against the intent pattern library and the entity catalog.
package interpreter

import (
	"strings"

	"infra-chatops/internal/catalog"
)

const DefaultConfidenceThreshold = 0.7

// Command is a recognized intent with every slot of that intent filled.
type Command struct {
	Intent     string            `json:"intent"`
	Parameters map[string]string `json:"parameters"`
	Confidence float64           `json:"confidence"`
	Pattern    string            `json:"pattern"`
	Unresolved []string          `json:"unresolved,omitempty"`
}

// Interpreter is a pure function of its input text and the static catalogs.
// It holds no mutable state and is safe for concurrent use.
type Interpreter struct {
	catalog   *catalog.Catalog
	library   *catalog.Library
	threshold float64
	fillers   map[string]struct{}
}

type Option func(*Interpreter)

func WithThreshold(t float64) Option {
	return func(in *Interpreter) {
		if t > 0 && t <= 1 {
			in.threshold = t
		}
	}
}

// WithFillerWords drops politeness words ("please") before matching.
func WithFillerWords(words ...string) Option {
	return func(in *Interpreter) {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				in.fillers[w] = struct{}{}
			}
		}
	}
}

func New(cat *catalog.Catalog, lib *catalog.Library, opts ...Option) *Interpreter {
	in := &Interpreter{
		catalog:   cat,
		library:   lib,
		threshold: DefaultConfidenceThreshold,
		fillers:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func (in *Interpreter) Threshold() float64 { return in.threshold }

func (in *Interpreter) Library() *catalog.Library { return in.library }

// Interpret returns the best matching Command, or a *Rejection error.
func (in *Interpreter) Interpret(text string) (*Command, error) {
	tokens := in.Normalize(text)
	if len(tokens) == 0 {
		return nil, newNoMatch()
	}

	var bestValid, bestInvalid *candidate
	for _, intent := range in.library.Intents() {
		for _, p := range intent.CompiledPatterns() {
			for _, a := range align(p, tokens) {
				c := in.score(intent, p, tokens, a)
				if c.valid() {
					if c.beats(bestValid) {
						bestValid = c
					}
				} else if c.beats(bestInvalid) {
					bestInvalid = c
				}
			}
		}
	}

	switch {
	case bestInvalid != nil && bestInvalid.confidence >= in.threshold &&
		(bestValid == nil || bestInvalid.confidence > bestValid.confidence):
		return nil, newMissingRequiredSlot(bestInvalid.intent, bestInvalid.missing, bestInvalid.confidence)
	case bestValid != nil && bestValid.confidence >= in.threshold:
		return bestValid.command(), nil
	}

	best := bestValid
	if bestInvalid != nil && (best == nil || bestInvalid.confidence > best.confidence) {
		best = bestInvalid
	}
	if best == nil {
		return nil, newNoMatch()
	}
	rej := newBelowThreshold(best.intent.Name, best.confidence, in.threshold)
	rej.addUnknown(best.intent, best.unknown)
	return nil, rej
}

// Normalize lower-cases text, collapses whitespace, strips trailing
// punctuation from each word and drops filler words.
func (in *Interpreter) Normalize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimRight(f, "?!.,;:")
		if f == "" {
			continue
		}
		if _, filler := in.fillers[f]; filler {
			continue
		}
		out = append(out, f)
	}
	return out
}
