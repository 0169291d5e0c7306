// internal/workers/runtime/script-eval/models.go
package scripteval

// Input holds the script step parameters. Each "set.<field>" parameter is an
// expression whose result becomes output field <field>; Expression, when
// present, must evaluate to a map that is merged into the output first.
type Input struct {
	Expression string
	Set        map[string]string
	Params     map[string]string
	Steps      map[int]map[string]interface{}
}

type Output map[string]interface{}
