package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// SlotSpec declares one named parameter of an intent. A strict slot only
// accepts values its entity type resolves.
type SlotSpec struct {
	Name       string     `yaml:"name" json:"name"`
	EntityType EntityType `yaml:"entity" json:"entity"`
	Required   bool       `yaml:"required" json:"required"`
	Default    *string    `yaml:"default,omitempty" json:"default,omitempty"`
	Strict     bool       `yaml:"strict,omitempty" json:"strict,omitempty"`
}

func (s SlotSpec) HasDefault() bool { return s.Default != nil }

// Example is a self-test utterance and the parameters it must produce.
type Example struct {
	Text       string            `yaml:"text" json:"text"`
	Parameters map[string]string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// IntentDefinition is one recognizable command. Patterns are tried in order.
type IntentDefinition struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Patterns    []string   `yaml:"patterns" json:"patterns"`
	Slots       []SlotSpec `yaml:"slots,omitempty" json:"slots,omitempty"`
	Examples    []Example  `yaml:"examples,omitempty" json:"examples,omitempty"`

	compiled []Pattern
}

// Slot returns the spec of the named slot.
func (d *IntentDefinition) Slot(name string) (SlotSpec, bool) {
	for _, s := range d.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return SlotSpec{}, false
}

// CompiledPatterns returns the tokenized patterns in definition order.
func (d *IntentDefinition) CompiledPatterns() []Pattern { return d.compiled }

// RequiredSlots lists required slots that have no default.
func (d *IntentDefinition) RequiredSlots() []string {
	var out []string
	for _, s := range d.Slots {
		if s.Required && !s.HasDefault() {
			out = append(out, s.Name)
		}
	}
	return out
}

// Library is the ordered intent registry. Iteration order is definition order.
type Library struct {
	intents []*IntentDefinition
	byName  map[string]*IntentDefinition
}

// NewLibrary compiles and validates intents against cat.
func NewLibrary(intents []IntentDefinition, cat *Catalog) (*Library, error) {
	lib := &Library{byName: make(map[string]*IntentDefinition, len(intents))}

	for i := range intents {
		def := intents[i]
		def.Name = strings.ToLower(strings.TrimSpace(def.Name))
		if def.Name == "" {
			return nil, fmt.Errorf("intent #%d: name is required", i+1)
		}
		if _, dup := lib.byName[def.Name]; dup {
			return nil, fmt.Errorf("intent %s: defined twice", def.Name)
		}
		if len(def.Patterns) == 0 {
			return nil, fmt.Errorf("intent %s: at least one pattern is required", def.Name)
		}
		def.Slots = append([]SlotSpec(nil), def.Slots...)
		if err := validateSlots(&def, cat); err != nil {
			return nil, fmt.Errorf("intent %s: %w", def.Name, err)
		}

		def.compiled = make([]Pattern, 0, len(def.Patterns))
		for _, raw := range def.Patterns {
			p, err := CompilePattern(raw)
			if err != nil {
				return nil, fmt.Errorf("intent %s: %w", def.Name, err)
			}
			for _, name := range p.SlotNames() {
				if _, ok := def.Slot(name); !ok {
					return nil, fmt.Errorf("intent %s: pattern %q uses undeclared slot {%s}", def.Name, raw, name)
				}
			}
			def.compiled = append(def.compiled, p)
		}

		lib.intents = append(lib.intents, &def)
		lib.byName[def.Name] = &def
	}

	return lib, nil
}

func validateSlots(def *IntentDefinition, cat *Catalog) error {
	seen := make(map[string]bool, len(def.Slots))
	for i, s := range def.Slots {
		if s.Name == "" {
			return fmt.Errorf("slot name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("slot %s declared twice", s.Name)
		}
		seen[s.Name] = true

		if !cat.Knows(s.EntityType) {
			return fmt.Errorf("slot %s: unknown entity type %q", s.Name, s.EntityType)
		}
		if s.HasDefault() {
			canonical, ok := cat.Resolve(s.EntityType, *s.Default)
			if !ok {
				return fmt.Errorf("slot %s: default %q is not a valid %s", s.Name, *s.Default, s.EntityType)
			}
			def.Slots[i].Default = &canonical
		}
	}
	return nil
}

// Intents returns the intents in catalog order.
func (l *Library) Intents() []*IntentDefinition { return l.intents }

func (l *Library) Lookup(name string) (*IntentDefinition, bool) {
	d, ok := l.byName[strings.ToLower(name)]
	return d, ok
}

// HelpText renders the command overview, or the usage of a single intent when
// topic names one.
func (l *Library) HelpText(topic string) string {
	if d, ok := l.Lookup(topic); ok {
		return intentUsage(d)
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, d := range l.intents {
		fmt.Fprintf(&b, "• %s: %s\n", d.Name, d.Description)
		if len(d.Examples) > 0 {
			fmt.Fprintf(&b, "  Example: %s\n", d.Examples[0].Text)
		}
	}
	b.WriteString("\nType 'help <command>' for details on a specific command.")
	return b.String()
}

func intentUsage(d *IntentDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", d.Name, d.Description)

	b.WriteString("Usage:\n")
	for _, p := range d.Patterns {
		fmt.Fprintf(&b, "  %s\n", p)
	}

	if len(d.Slots) > 0 {
		b.WriteString("Parameters:\n")
		slots := append([]SlotSpec(nil), d.Slots...)
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].Required && !slots[j].Required })
		for _, s := range slots {
			line := fmt.Sprintf("  %s (%s)", s.Name, s.EntityType)
			switch {
			case s.Required && !s.HasDefault():
				line += " required"
			case s.HasDefault():
				line += fmt.Sprintf(" default: %s", *s.Default)
			}
			b.WriteString(line + "\n")
		}
	}

	for _, ex := range d.Examples {
		fmt.Fprintf(&b, "Example: %s\n", ex.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
