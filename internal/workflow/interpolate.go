package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Template strings use a closed grammar:
//
//	${name}               command parameter
//	${stepN_output}       whole output of step N, rendered as JSON
//	${stepN_output.a.b}   field path into the output of step N
//	$${                   literal "${"
//
// Anything else inside ${...} is a parse error.

var (
	ErrInterpolation = errors.New("interpolation failure")

	stepRefPattern = regexp.MustCompile(`^step([0-9]+)_output$`)
)

// Reference is one ${...} placeholder.
type Reference struct {
	Name string
	Step int
	Path []string
}

func (r Reference) IsStep() bool { return r.Step > 0 }

func (r Reference) String() string {
	if len(r.Path) == 0 {
		return "${" + r.Name + "}"
	}
	return "${" + r.Name + "." + strings.Join(r.Path, ".") + "}"
}

type segment struct {
	literal string
	ref     *Reference
}

// Expression is a parsed template string.
type Expression struct {
	raw      string
	segments []segment
}

func (e Expression) Raw() string { return e.raw }

// References lists the placeholders in order of appearance.
func (e Expression) References() []Reference {
	var out []Reference
	for _, s := range e.segments {
		if s.ref != nil {
			out = append(out, *s.ref)
		}
	}
	return out
}

// ParseExpression parses a template string.
func ParseExpression(raw string) (Expression, error) {
	expr := Expression{raw: raw}
	var lit strings.Builder

	for i := 0; i < len(raw); {
		switch {
		case strings.HasPrefix(raw[i:], "$${"):
			lit.WriteString("${")
			i += 3
		case strings.HasPrefix(raw[i:], "${"):
			end := strings.IndexByte(raw[i+2:], '}')
			if end < 0 {
				return Expression{}, fmt.Errorf("template %q: unterminated ${ at offset %d", raw, i)
			}
			ref, err := parseReference(raw[i+2 : i+2+end])
			if err != nil {
				return Expression{}, fmt.Errorf("template %q: %w", raw, err)
			}
			if lit.Len() > 0 {
				expr.segments = append(expr.segments, segment{literal: lit.String()})
				lit.Reset()
			}
			expr.segments = append(expr.segments, segment{ref: &ref})
			i += end + 3
		default:
			lit.WriteByte(raw[i])
			i++
		}
	}
	if lit.Len() > 0 {
		expr.segments = append(expr.segments, segment{literal: lit.String()})
	}
	return expr, nil
}

// ParseReference parses the body of a placeholder, e.g. "step2_output.name".
func ParseReference(body string) (Reference, error) { return parseReference(body) }

func parseReference(body string) (Reference, error) {
	parts := strings.Split(strings.TrimSpace(body), ".")
	for _, p := range parts {
		if !isName(p) {
			return Reference{}, fmt.Errorf("invalid reference %q", body)
		}
	}

	ref := Reference{Name: parts[0], Path: parts[1:]}
	if m := stepRefPattern.FindStringSubmatch(ref.Name); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return Reference{}, fmt.Errorf("invalid step reference %q", body)
		}
		ref.Step = n
		return ref, nil
	}
	if len(ref.Path) > 0 {
		return Reference{}, fmt.Errorf("parameter reference %q cannot have a field path", body)
	}
	return ref, nil
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '-', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Scope is what a template can see: the parameter environment and the ledger.
type Scope struct {
	Parameters map[string]string
	Ledger     *Ledger
}

// InterpolationError reports a placeholder that could not be resolved.
type InterpolationError struct {
	Ref    Reference
	Reason string
}

func (e *InterpolationError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %s", e.Ref, e.Reason)
}

func (e *InterpolationError) Unwrap() error { return ErrInterpolation }

// Render substitutes every placeholder. It never silently yields an empty
// string for an unknown parameter or a step that has not produced output.
func (e Expression) Render(scope Scope) (string, error) {
	var b strings.Builder
	for _, s := range e.segments {
		if s.ref == nil {
			b.WriteString(s.literal)
			continue
		}
		v, err := scope.Resolve(*s.ref)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// Resolve renders one reference.
func (s Scope) Resolve(ref Reference) (string, error) {
	if !ref.IsStep() {
		v, ok := s.Parameters[ref.Name]
		if !ok {
			return "", &InterpolationError{Ref: ref, Reason: "unknown parameter"}
		}
		return v, nil
	}

	if s.Ledger == nil {
		return "", &InterpolationError{Ref: ref, Reason: fmt.Sprintf("step %d has not run", ref.Step)}
	}
	entry, ok := s.Ledger.Get(ref.Step)
	if !ok {
		return "", &InterpolationError{Ref: ref, Reason: fmt.Sprintf("step %d has not run", ref.Step)}
	}
	if entry.Status != StatusOk {
		return "", &InterpolationError{Ref: ref, Reason: fmt.Sprintf("step %d did not succeed", ref.Step)}
	}

	var current interface{} = entry.Output
	for i, field := range ref.Path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return "", &InterpolationError{Ref: ref, Reason: fmt.Sprintf("%s is not an object", strings.Join(ref.Path[:i], "."))}
		}
		current, ok = m[field]
		if !ok {
			return "", &InterpolationError{Ref: ref, Reason: fmt.Sprintf("field %q not in output", strings.Join(ref.Path[:i+1], "."))}
		}
	}
	return FormatValue(current), nil
}

// FormatValue renders an output value as template text. Integral floats lose
// their fraction so counts read naturally.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// RenderParameters renders a compiled parameter map.
func RenderParameters(compiled map[string]Expression, scope Scope) (map[string]string, error) {
	keys := make([]string, 0, len(compiled))
	for key := range compiled {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(compiled))
	for _, key := range keys {
		v, err := compiled[key].Render(scope)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}
