package interpreter

import "infra-chatops/internal/catalog"

type capture struct {
	slot      string
	raw       string
	canonical string
	resolved  bool
}

type candidate struct {
	intent     *catalog.IntentDefinition
	pattern    catalog.Pattern
	captures   []capture
	missing    []string
	unknown    []capture
	confidence float64
}

func (c *candidate) valid() bool { return len(c.missing) == 0 }

// beats reports whether c should replace the current best. Only a strictly
// higher confidence wins, so the earlier intent and pattern keep ties.
func (c *candidate) beats(best *candidate) bool {
	return best == nil || c.confidence > best.confidence
}

// score resolves the captures of one alignment and computes its confidence:
//
//	literal = (exact + 0.5*near) / literals
//	slots   = (resolved + 0.5*unresolved) / captures   (1 without captures)
//	confidence = literal * slots
//
// An unresolved capture of a strict slot contributes nothing to slots.
// Absent placeholders do not count, so defaults never lower the score.
func (in *Interpreter) score(intent *catalog.IntentDefinition, p catalog.Pattern, tokens []string, a alignment) *candidate {
	c := &candidate{intent: intent, pattern: p}

	present := make(map[string]bool)
	resolved, lenient := 0, 0
	for i, tok := range p.Tokens {
		if !tok.IsSlot() || a.spans[i].absent() {
			continue
		}
		spec, _ := intent.Slot(tok.Slot)
		raw := joinSpan(tokens, a.spans[i])
		canonical, ok := in.catalog.Resolve(spec.EntityType, raw)
		cp := capture{slot: tok.Slot, raw: raw, canonical: canonical, resolved: ok}
		switch {
		case ok:
			resolved++
		case spec.Strict:
			c.unknown = append(c.unknown, cp)
		default:
			lenient++
		}
		c.captures = append(c.captures, cp)
		present[tok.Slot] = true
	}

	for _, name := range intent.RequiredSlots() {
		if !present[name] {
			c.missing = append(c.missing, name)
		}
	}

	literal := (float64(a.exact) + 0.5*float64(a.near)) / float64(p.Literals)
	slots := 1.0
	if n := len(c.captures); n > 0 {
		slots = (float64(resolved) + 0.5*float64(lenient)) / float64(n)
	}
	c.confidence = literal * slots
	return c
}

// command fills every slot of the winning intent: capture, then default,
// then empty for optional slots without a default.
func (c *candidate) command() *Command {
	cmd := &Command{
		Intent:     c.intent.Name,
		Parameters: make(map[string]string, len(c.intent.Slots)),
		Confidence: c.confidence,
		Pattern:    c.pattern.Raw,
	}

	captured := make(map[string]capture, len(c.captures))
	for _, cp := range c.captures {
		captured[cp.slot] = cp
	}

	for _, spec := range c.intent.Slots {
		if cp, ok := captured[spec.Name]; ok {
			if cp.resolved {
				cmd.Parameters[spec.Name] = cp.canonical
			} else {
				cmd.Parameters[spec.Name] = cp.raw
				cmd.Unresolved = append(cmd.Unresolved, spec.Name)
			}
			continue
		}
		if spec.HasDefault() {
			cmd.Parameters[spec.Name] = *spec.Default
			continue
		}
		cmd.Parameters[spec.Name] = ""
	}
	return cmd
}
