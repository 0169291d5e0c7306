package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// EntityType names a family of values a slot can resolve to.
type EntityType string

const (
	EntityService     EntityType = "service"
	EntityEnvironment EntityType = "environment"
	EntityResource    EntityType = "resource"
	EntityRegion      EntityType = "region"
	EntityDirection   EntityType = "direction"
	EntityAction      EntityType = "action"
	EntityNumber      EntityType = "number"
	EntityVersion     EntityType = "version"
)

// EntityDefinition is one canonical value and the synonyms that resolve to it.
type EntityDefinition struct {
	Type           EntityType `yaml:"type" json:"type"`
	CanonicalValue string     `yaml:"value" json:"value"`
	Synonyms       []string   `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
}

// OpenEntityType accepts any capture matching Pattern (counts, versions).
type OpenEntityType struct {
	Type    EntityType `yaml:"type" json:"type"`
	Pattern string     `yaml:"pattern" json:"pattern"`
}

// Catalog is the read-only entity lookup table. Safe for concurrent use.
type Catalog struct {
	definitions []EntityDefinition
	lookup      map[EntityType]map[string]string
	open        map[EntityType]*regexp.Regexp
	order       []EntityType
}

// NewCatalog indexes defs. A canonical value must be unique within its type
// and a synonym may not point at two canonical values of the same type.
func NewCatalog(defs []EntityDefinition, open []OpenEntityType) (*Catalog, error) {
	c := &Catalog{
		definitions: make([]EntityDefinition, 0, len(defs)),
		lookup:      make(map[EntityType]map[string]string),
		open:        make(map[EntityType]*regexp.Regexp),
	}

	canonicals := make(map[EntityType]map[string]bool)
	for _, def := range defs {
		if def.Type == "" {
			return nil, fmt.Errorf("entity %q: type is required", def.CanonicalValue)
		}
		value := NormalizeValue(def.CanonicalValue)
		if value == "" {
			return nil, fmt.Errorf("entity of type %s: value is required", def.Type)
		}
		if canonicals[def.Type] == nil {
			canonicals[def.Type] = make(map[string]bool)
			c.lookup[def.Type] = make(map[string]string)
			c.order = append(c.order, def.Type)
		}
		if canonicals[def.Type][value] {
			return nil, fmt.Errorf("entity %s/%s: duplicate canonical value", def.Type, value)
		}
		canonicals[def.Type][value] = true

		names := append([]string{value}, def.Synonyms...)
		for _, name := range names {
			key := NormalizeValue(name)
			if key == "" {
				continue
			}
			if prev, ok := c.lookup[def.Type][key]; ok && prev != value {
				return nil, fmt.Errorf("entity %s: synonym %q maps to both %q and %q", def.Type, key, prev, value)
			}
			c.lookup[def.Type][key] = value
		}

		def.CanonicalValue = value
		c.definitions = append(c.definitions, def)
	}

	for _, o := range open {
		if _, closed := c.lookup[o.Type]; closed {
			return nil, fmt.Errorf("entity type %s is declared both open and closed", o.Type)
		}
		re, err := regexp.Compile(o.Pattern)
		if err != nil {
			return nil, fmt.Errorf("open entity type %s: %w", o.Type, err)
		}
		if _, dup := c.open[o.Type]; !dup {
			c.order = append(c.order, o.Type)
		}
		c.open[o.Type] = re
	}

	return c, nil
}

// Resolve maps raw captured text to its canonical value. The boolean is false
// when the text is not a known synonym (closed types) or does not match the
// type's pattern (open types).
func (c *Catalog) Resolve(t EntityType, raw string) (string, bool) {
	key := NormalizeValue(raw)
	if key == "" {
		return "", false
	}
	if values, ok := c.lookup[t]; ok {
		canonical, found := values[key]
		return canonical, found
	}
	if re, ok := c.open[t]; ok && re.MatchString(key) {
		return key, true
	}
	return "", false
}

// Knows reports whether t is declared in the catalog.
func (c *Catalog) Knows(t EntityType) bool {
	_, closed := c.lookup[t]
	_, open := c.open[t]
	return closed || open
}

// Values lists the canonical values of a closed type in definition order.
func (c *Catalog) Values(t EntityType) []string {
	var out []string
	for _, def := range c.definitions {
		if def.Type == t {
			out = append(out, def.CanonicalValue)
		}
	}
	return out
}

// Types lists declared entity types in declaration order.
func (c *Catalog) Types() []EntityType {
	return append([]EntityType(nil), c.order...)
}

// NormalizeValue lower-cases s and collapses internal whitespace.
func NormalizeValue(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
