// internal/workers/runtime/condition-eval/models.go
package conditioneval

type Input struct {
	Left     string `json:"left"`
	Operator string `json:"operator"`
	Right    string `json:"right"`
}

type Output struct {
	Result   bool   `json:"result"`
	Left     string `json:"left"`
	Operator string `json:"operator"`
	Right    string `json:"right"`
	Branch   string `json:"branch"` // "then" or "else"
}

const (
	BranchThen = "then"
	BranchElse = "else"
)
