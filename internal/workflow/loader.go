package workflow

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type stepDocument struct {
	Name       string         `yaml:"name"`
	Type       StepType       `yaml:"type"`
	Parameters yaml.Node      `yaml:"parameters"`
	Condition  *ConditionSpec `yaml:"condition"`
	Then       []stepDocument `yaml:"then"`
	Else       []stepDocument `yaml:"else"`
	BestEffort bool           `yaml:"best_effort"`
	Timeout    string         `yaml:"timeout"`
}

type templateDocument struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []stepDocument `yaml:"steps"`
	Notify      struct {
		Success *stepDocument `yaml:"success"`
		Failure *stepDocument `yaml:"failure"`
	} `yaml:"notify"`
}

// LoadTemplateFile reads and validates one workflow template.
func LoadTemplateFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	t, err := LoadTemplate(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	t.Source = path
	return t, nil
}

// LoadTemplate decodes a workflow template, numbers its steps and validates
// every reference.
func LoadTemplate(r io.Reader) (*Template, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc templateDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}

	t := &Template{
		Name:        strings.TrimSpace(doc.Name),
		Description: doc.Description,
	}

	var err error
	if t.Steps, err = buildSteps(doc.Steps); err != nil {
		return nil, err
	}
	if doc.Notify.Success != nil {
		if t.Notify.Success, err = buildStep(*doc.Notify.Success); err != nil {
			return nil, err
		}
	}
	if doc.Notify.Failure != nil {
		if t.Notify.Failure, err = buildStep(*doc.Notify.Failure); err != nil {
			return nil, err
		}
	}

	t.size = number(t.Steps, 1) - 1
	for _, s := range []*StepSpec{t.Notify.Success, t.Notify.Failure} {
		if s != nil {
			s.Position = t.TerminalPosition()
		}
	}

	if err := Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

func buildSteps(docs []stepDocument) ([]*StepSpec, error) {
	steps := make([]*StepSpec, 0, len(docs))
	for _, d := range docs {
		s, err := buildStep(d)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func buildStep(d stepDocument) (*StepSpec, error) {
	s := &StepSpec{
		Name:       strings.TrimSpace(d.Name),
		Type:       StepType(strings.ToLower(string(d.Type))),
		Condition:  d.Condition,
		BestEffort: d.BestEffort,
	}

	if d.Timeout != "" {
		timeout, err := time.ParseDuration(d.Timeout)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("step %q: invalid timeout %q", s.Name, d.Timeout)
		}
		s.Timeout = timeout
	}

	params, err := flattenParameters(&d.Parameters)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.Name, err)
	}
	s.Parameters = params

	if s.Then, err = buildSteps(d.Then); err != nil {
		return nil, err
	}
	if s.Else, err = buildSteps(d.Else); err != nil {
		return nil, err
	}
	return s, nil
}

// flattenParameters turns nested YAML maps into dotted keys so handlers always
// receive a flat string map: {vars: {replicas: 3}} becomes vars.replicas=3.
// Sequences are joined with commas.
func flattenParameters(node *yaml.Node) (map[string]string, error) {
	out := make(map[string]string)
	if node == nil || node.Kind == 0 {
		return out, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return out, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parameters must be a mapping")
	}
	if err := flattenInto(out, "", node); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]string, prefix string, node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flattenInto(out, key, node.Content[i+1]); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		items := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("parameter %s: only lists of scalars are supported", prefix)
			}
			items = append(items, item.Value)
		}
		out[prefix] = strings.Join(items, ",")
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			out[prefix] = ""
		} else {
			out[prefix] = node.Value
		}
	case yaml.AliasNode:
		return flattenInto(out, prefix, node.Alias)
	default:
		return fmt.Errorf("parameter %s: unsupported value", prefix)
	}
	return nil
}

// TemplateSet is the read-only collection of workflow templates keyed by name.
type TemplateSet struct {
	templates map[string]*Template
	names     []string
}

func NewTemplateSet(templates ...*Template) (*TemplateSet, error) {
	set := &TemplateSet{templates: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if _, dup := set.templates[t.Name]; dup {
			return nil, fmt.Errorf("workflow %s defined twice", t.Name)
		}
		set.templates[t.Name] = t
		set.names = append(set.names, t.Name)
	}
	sort.Strings(set.names)
	return set, nil
}

// LoadDir loads every *.yaml and *.yml file under dir.
func LoadDir(dir string) (*TemplateSet, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no workflow templates in %s", dir)
	}

	templates := make([]*Template, 0, len(paths))
	for _, p := range paths {
		t, err := LoadTemplateFile(p)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return NewTemplateSet(templates...)
}

func (s *TemplateSet) Get(name string) (*Template, bool) {
	t, ok := s.templates[name]
	return t, ok
}

// Names returns the template names sorted alphabetically.
func (s *TemplateSet) Names() []string { return append([]string(nil), s.names...) }
