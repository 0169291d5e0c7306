package engine

import (
	"fmt"
	"time"

	"infra-chatops/internal/common/validation"
	"infra-chatops/internal/workflow"
	"infra-chatops/pkg/registry"
)

// RegistryValidator validates step parameters and outputs against the JSON
// schemas of the step registry.
type RegistryValidator struct {
	schemas *validation.Validator
}

func NewRegistryValidator(reg *registry.StepRegistry) (*RegistryValidator, error) {
	v := &RegistryValidator{schemas: validation.NewValidator()}
	for _, st := range reg.StepTypes {
		if err := v.schemas.Register(inputKey(workflow.StepType(st.ID)), st.InputSchema); err != nil {
			return nil, err
		}
		if err := v.schemas.Register(outputKey(workflow.StepType(st.ID)), st.OutputSchema); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (v *RegistryValidator) ValidateInput(t workflow.StepType, params map[string]string) error {
	return v.check(inputKey(t), validation.StringDocument(params))
}

func (v *RegistryValidator) ValidateOutput(t workflow.StepType, output map[string]interface{}) error {
	if output == nil {
		output = map[string]interface{}{}
	}
	return v.check(outputKey(t), output)
}

func (v *RegistryValidator) check(key string, doc interface{}) error {
	res, err := v.schemas.Validate(key, doc)
	if err != nil {
		return err
	}
	return res.Err()
}

func inputKey(t workflow.StepType) string  { return fmt.Sprintf("%s:input", t) }
func outputKey(t workflow.StepType) string { return fmt.Sprintf("%s:output", t) }

// StepTimeouts reads the default timeout of every registered step type.
func StepTimeouts(reg *registry.StepRegistry) (map[workflow.StepType]time.Duration, error) {
	out := make(map[workflow.StepType]time.Duration, len(reg.StepTypes))
	for i := range reg.StepTypes {
		d, err := reg.StepTypes[i].TimeoutDuration()
		if err != nil {
			return nil, err
		}
		if d > 0 {
			out[workflow.StepType(reg.StepTypes[i].ID)] = d
		}
	}
	return out, nil
}
