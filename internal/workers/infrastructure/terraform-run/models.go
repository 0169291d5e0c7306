// internal/workers/infrastructure/terraform-run/models.go
package terraformrun

type Input struct {
	Action    string            `json:"action"`
	Workspace string            `json:"workspace,omitempty"`
	VarFile   string            `json:"var_file,omitempty"`
	Vars      map[string]string `json:"vars,omitempty"`
	Dir       string            `json:"dir,omitempty"`
	Target    string            `json:"target,omitempty"`
}

// Output is flat so workflow templates can reference fields directly, e.g.
// ${step1_output.replicas} for a terraform output named replicas.
type Output map[string]interface{}

// Actions
const (
	ActionInit     = "init"
	ActionPlan     = "plan"
	ActionApply    = "apply"
	ActionOutput   = "output"
	ActionState    = "state"
	ActionDestroy  = "destroy"
	ActionValidate = "validate"
	ActionRefresh  = "refresh"
)

// PlanSummary counts the resource changes reported by plan, apply and destroy.
type PlanSummary struct {
	Add     int `json:"add"`
	Change  int `json:"change"`
	Destroy int `json:"destroy"`
}

type outputValue struct {
	Value     interface{} `json:"value"`
	Type      interface{} `json:"type"`
	Sensitive bool        `json:"sensitive"`
}
