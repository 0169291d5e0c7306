// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

func LoadRegistry(path string) (*StepRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg StepRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse step registry %s: %w", path, err)
	}
	return &reg, reg.check()
}

// Save writes the registry back with a refreshed lastUpdated stamp.
func (r *StepRegistry) Save(path string) error {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (r *StepRegistry) Lookup(id string) (*StepType, bool) {
	for i := range r.StepTypes {
		if r.StepTypes[i].ID == id {
			return &r.StepTypes[i], true
		}
	}
	return nil, false
}

// IDs lists registered step types in file order.
func (r *StepRegistry) IDs() []string {
	ids := make([]string, 0, len(r.StepTypes))
	for _, s := range r.StepTypes {
		ids = append(ids, s.ID)
	}
	return ids
}

// TimeoutDuration parses the step type's default timeout. Zero when unset.
func (s *StepType) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Timeout)
}

func (r *StepRegistry) check() error {
	seen := make(map[string]bool, len(r.StepTypes))
	for _, s := range r.StepTypes {
		if s.ID == "" {
			return fmt.Errorf("step registry: entry without id")
		}
		if seen[s.ID] {
			return fmt.Errorf("step registry: %s listed twice", s.ID)
		}
		seen[s.ID] = true
		if _, err := s.TimeoutDuration(); err != nil {
			return fmt.Errorf("step registry: %s: invalid timeout %q", s.ID, s.Timeout)
		}
	}
	return nil
}
