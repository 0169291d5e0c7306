package catalog

import (
	"fmt"
	"strings"
)

// Token is one element of a compiled pattern: a literal word or a {slot} placeholder.
type Token struct {
	Literal string
	Slot    string
}

func (t Token) IsSlot() bool { return t.Slot != "" }

// Pattern is a whitespace tokenized template such as "deploy {service} to {environment}".
type Pattern struct {
	Raw      string
	Tokens   []Token
	Literals int
}

// CompilePattern tokenizes raw. A pattern needs at least one literal word and
// may not repeat a placeholder.
func CompilePattern(raw string) (Pattern, error) {
	p := Pattern{Raw: raw}
	seen := make(map[string]bool)

	for _, field := range strings.Fields(raw) {
		if strings.HasPrefix(field, "{") || strings.HasSuffix(field, "}") {
			if len(field) < 3 || !strings.HasPrefix(field, "{") || !strings.HasSuffix(field, "}") {
				return Pattern{}, fmt.Errorf("pattern %q: malformed placeholder %q", raw, field)
			}
			name := field[1 : len(field)-1]
			if !isIdentifier(name) {
				return Pattern{}, fmt.Errorf("pattern %q: invalid slot name %q", raw, name)
			}
			if seen[name] {
				return Pattern{}, fmt.Errorf("pattern %q: placeholder {%s} used twice", raw, name)
			}
			seen[name] = true
			p.Tokens = append(p.Tokens, Token{Slot: name})
			continue
		}
		p.Tokens = append(p.Tokens, Token{Literal: strings.ToLower(field)})
		p.Literals++
	}

	if p.Literals == 0 {
		return Pattern{}, fmt.Errorf("pattern %q: needs at least one literal word", raw)
	}
	return p, nil
}

// SlotNames lists the placeholders in pattern order.
func (p Pattern) SlotNames() []string {
	var out []string
	for _, t := range p.Tokens {
		if t.IsSlot() {
			out = append(out, t.Slot)
		}
	}
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
