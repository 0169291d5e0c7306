// Package mapper binds recognized commands to workflow templates and creates
// the instances the engine executes.
package mapper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"infra-chatops/internal/catalog"
	"infra-chatops/internal/interpreter"
	"infra-chatops/internal/workflow"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownIntent    = errors.New("no command template for intent")
	ErrUnknownWorkflow  = errors.New("command template names an unknown workflow")
	ErrMissingParameter = errors.New("required parameter is empty")
	ErrDirectIntent     = errors.New("intent is answered directly and has no workflow")
)

// CommandTemplate maps one intent to the workflow that carries it out.
// Constants are fixed parameters the command cannot override by omission;
// command parameters win over constants of the same name. Direct intents
// (help) are answered without a workflow.
type CommandTemplate struct {
	Intent    string            `yaml:"intent" json:"intent"`
	Workflow  string            `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Constants map[string]string `yaml:"constants,omitempty" json:"constants,omitempty"`
	Direct    bool              `yaml:"direct,omitempty" json:"direct,omitempty"`
}

type commandFile struct {
	Commands []CommandTemplate `yaml:"commands"`
}

// Mapper is immutable after New and safe for concurrent use.
type Mapper struct {
	commands  map[string]*CommandTemplate
	order     []string
	templates *workflow.TemplateSet
	library   *catalog.Library
}

// New validates the command templates against the workflow set and the intent
// library: every intent exists, every workflow exists and every parameter a
// workflow references is provided by the intent's slots or the constants.
func New(commands []CommandTemplate, templates *workflow.TemplateSet, lib *catalog.Library) (*Mapper, error) {
	m := &Mapper{
		commands:  make(map[string]*CommandTemplate, len(commands)),
		templates: templates,
		library:   lib,
	}

	reserved := make(map[string]bool)
	for _, name := range workflow.ReservedNames() {
		reserved[name] = true
	}

	var problems []string
	for i := range commands {
		ct := commands[i]
		ct.Intent = strings.ToLower(strings.TrimSpace(ct.Intent))
		if ct.Intent == "" {
			problems = append(problems, fmt.Sprintf("command %d: intent is required", i+1))
			continue
		}
		if _, dup := m.commands[ct.Intent]; dup {
			problems = append(problems, fmt.Sprintf("intent %s: duplicate command template", ct.Intent))
			continue
		}

		var def *catalog.IntentDefinition
		if lib != nil {
			d, ok := lib.Lookup(ct.Intent)
			if !ok {
				problems = append(problems, fmt.Sprintf("intent %s: not in the intent library", ct.Intent))
				continue
			}
			def = d
			for _, s := range def.Slots {
				if reserved[s.Name] {
					problems = append(problems, fmt.Sprintf("intent %s: slot %q is a reserved name", ct.Intent, s.Name))
				}
			}
		}
		for k := range ct.Constants {
			if reserved[k] {
				problems = append(problems, fmt.Sprintf("intent %s: constant %q is a reserved name", ct.Intent, k))
			}
		}

		switch {
		case ct.Direct && ct.Workflow != "":
			problems = append(problems, fmt.Sprintf("intent %s: a direct command cannot name a workflow", ct.Intent))
		case !ct.Direct:
			problems = append(problems, m.checkWorkflow(&ct, def, reserved)...)
		}

		m.commands[ct.Intent] = &ct
		m.order = append(m.order, ct.Intent)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid command templates: %s", strings.Join(problems, "; "))
	}
	return m, nil
}

func (m *Mapper) checkWorkflow(ct *CommandTemplate, def *catalog.IntentDefinition, reserved map[string]bool) []string {
	tmpl, ok := m.templates.Get(ct.Workflow)
	if !ok {
		return []string{fmt.Sprintf("intent %s: %v %q", ct.Intent, ErrUnknownWorkflow, ct.Workflow)}
	}
	if def == nil {
		return nil
	}

	provided := make(map[string]bool, len(def.Slots)+len(ct.Constants))
	for _, s := range def.Slots {
		provided[s.Name] = true
	}
	for k := range ct.Constants {
		provided[k] = true
	}

	var problems []string
	steps, terminal := workflow.ParameterNames(tmpl)
	for _, name := range steps {
		if !provided[name] {
			problems = append(problems, fmt.Sprintf("intent %s: workflow %s uses ${%s}, which no slot or constant provides", ct.Intent, tmpl.Name, name))
		}
	}
	for _, name := range terminal {
		if !provided[name] && !reserved[name] {
			problems = append(problems, fmt.Sprintf("intent %s: workflow %s notification uses ${%s}, which no slot or constant provides", ct.Intent, tmpl.Name, name))
		}
	}
	return problems
}

// LoadFile reads command templates from a YAML file.
func LoadFile(path string, templates *workflow.TemplateSet, lib *catalog.Library) (*Mapper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open command templates: %w", err)
	}
	defer f.Close()
	return Load(f, templates, lib)
}

// Load decodes command templates. Unknown fields are rejected.
func Load(r io.Reader, templates *workflow.TemplateSet, lib *catalog.Library) (*Mapper, error) {
	var cf commandFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("decode command templates: %w", err)
	}
	return New(cf.Commands, templates, lib)
}

// Materialize creates a new Pending instance for cmd with an empty ledger.
// Every declared slot of the intent is present in the instance parameters,
// empty when the command left an optional slot out.
func (m *Mapper) Materialize(cmd *interpreter.Command) (*workflow.Instance, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrUnknownIntent)
	}
	ct, ok := m.commands[strings.ToLower(cmd.Intent)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, cmd.Intent)
	}
	if ct.Direct {
		return nil, fmt.Errorf("%w: %q", ErrDirectIntent, cmd.Intent)
	}
	tmpl, ok := m.templates.Get(ct.Workflow)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, ct.Workflow)
	}

	params := make(map[string]string, len(ct.Constants)+len(cmd.Parameters))
	for k, v := range ct.Constants {
		params[k] = v
	}
	for k, v := range cmd.Parameters {
		params[k] = v
	}

	if m.library != nil {
		if def, ok := m.library.Lookup(ct.Intent); ok {
			var missing []string
			for _, s := range def.Slots {
				v, present := params[s.Name]
				if !present {
					v = ""
					if s.HasDefault() {
						v = *s.Default
					}
					params[s.Name] = v
				}
				if s.Required && strings.TrimSpace(v) == "" {
					missing = append(missing, s.Name)
				}
			}
			if len(missing) > 0 {
				return nil, fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
			}
		}
	}

	return workflow.NewInstance(tmpl, ct.Intent, params), nil
}

func (m *Mapper) IsDirect(intent string) bool {
	ct, ok := m.commands[strings.ToLower(intent)]
	return ok && ct.Direct
}

// Template returns the command template registered for intent.
func (m *Mapper) Template(intent string) (*CommandTemplate, bool) {
	ct, ok := m.commands[strings.ToLower(intent)]
	if !ok {
		return nil, false
	}
	cp := *ct
	return &cp, true
}

// Intents lists the mapped intents in file order.
func (m *Mapper) Intents() []string { return append([]string(nil), m.order...) }

// Unmapped lists library intents that have no command template.
func (m *Mapper) Unmapped() []string {
	if m.library == nil {
		return nil
	}
	var out []string
	for _, d := range m.library.Intents() {
		if _, ok := m.commands[d.Name]; !ok {
			out = append(out, d.Name)
		}
	}
	sort.Strings(out)
	return out
}
