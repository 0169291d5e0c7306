package main

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/cobra"

	"infra-chatops/pkg/registry"
)

var (
	scaffoldOut   string
	scaffoldForce bool
)

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold <step-id>",
	Short: "Generate a step handler package from its step registry entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := registry.LoadRegistry(cfg.Catalog.StepRegistryFile)
		if err != nil {
			return err
		}
		st, ok := reg.Lookup(args[0])
		if !ok {
			return fmt.Errorf("step type %s is not in %s", args[0], cfg.Catalog.StepRegistryFile)
		}

		data, err := newScaffoldData(st)
		if err != nil {
			return err
		}
		dir := filepath.Join(scaffoldOut, data.Category, data.TaskType)
		files, err := renderScaffold(data)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for name, src := range files {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil && !scaffoldForce {
				return fmt.Errorf("%s exists, pass --force to overwrite", path)
			}
			if err := os.WriteFile(path, src, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
		}
		return nil
	},
}

type scaffoldField struct {
	Name  string
	Param string
}

type scaffoldData struct {
	ID          string
	Package     string
	TaskType    string
	Category    string
	Description string
	Timeout     string
	Fields      []scaffoldField
	Required    []string
}

func newScaffoldData(st *registry.StepType) (*scaffoldData, error) {
	if st.TaskType == "" {
		return nil, fmt.Errorf("step type %s has no taskType", st.ID)
	}
	timeout, err := st.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	category := st.Category
	if category == "" {
		category = "runtime"
	}

	d := &scaffoldData{
		ID:          st.ID,
		Package:     strings.ReplaceAll(st.TaskType, "-", ""),
		TaskType:    st.TaskType,
		Category:    category,
		Description: lowerFirst(st.Description),
		Timeout:     durationExpr(timeout),
	}
	props, _ := st.InputSchema["properties"].(map[string]interface{})
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.Fields = append(d.Fields, scaffoldField{Name: exportedName(name), Param: name})
	}
	if req, ok := st.InputSchema["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				d.Required = append(d.Required, exportedName(s))
			}
		}
	}
	return d, nil
}

// durationExpr renders d as Go source, e.g. 10 * time.Minute.
func durationExpr(d time.Duration) string {
	switch {
	case d%time.Minute == 0:
		return fmt.Sprintf("%d * time.Minute", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%d * time.Second", d/time.Second)
	}
	return fmt.Sprintf("%d * time.Millisecond", d/time.Millisecond)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// exportedName turns build_number into BuildNumber.
func exportedName(param string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(param, func(r rune) bool { return r == '_' || r == '-' || r == '.' }) {
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func renderScaffold(d *scaffoldData) (map[string][]byte, error) {
	files := map[string]*template.Template{
		"config.go":       scaffoldConfig,
		"models.go":       scaffoldModels,
		"handler.go":      scaffoldHandler,
		"handler_test.go": scaffoldTest,
	}
	out := make(map[string][]byte, len(files))
	for name, tmpl := range files {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, d); err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", name, err)
		}
		out[name] = src
	}
	return out, nil
}

var scaffoldConfig = template.Must(template.New("config").Parse(`// internal/workers/{{.Category}}/{{.TaskType}}/config.go
package {{.Package}}

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: {{.Timeout}},
	}
}
`))

var scaffoldModels = template.Must(template.New("models").Parse(`// internal/workers/{{.Category}}/{{.TaskType}}/models.go
package {{.Package}}

type Input struct {
{{- range .Fields}}
	{{.Name}} string ` + "`json:\"{{.Param}}\"`" + `
{{- end}}
}

type Output struct {
	Message string ` + "`json:\"message\"`" + `
}
`))

var scaffoldHandler = template.Must(template.New("handler").Parse(`// internal/workers/{{.Category}}/{{.TaskType}}/handler.go
package {{.Package}}

import (
	"context"
	"errors"
	"fmt"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/workflow"
)

const TaskType = "{{.TaskType}}"

var ErrInvalidInput = errors.New("INVALID_INPUT")

{{if .Description}}// Handler {{.Description}}.
{{end -}}
type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	input := &Input{
{{- range .Fields}}
		{{.Name}}: req.Parameters["{{.Param}}"],
{{- end}}
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return workflow.Fail(workflow.ErrorInvalidInput, "%v", err)
		}
		return workflow.Fail(workflow.ErrorExternalFailure, "%v", err)
	}
	out, err := workflow.OutputOf(output)
	if err != nil {
		return workflow.Fail(workflow.ErrorInvalidOutput, "encode output: %v", err)
	}
	return workflow.Ok(out)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
{{- range .Required}}
	if input.{{.}} == "" {
		return nil, fmt.Errorf("%w: {{.}} is required", ErrInvalidInput)
	}
{{- end}}
	h.logger.Info("executing step", nil)
	return &Output{Message: fmt.Sprintf("%s done", TaskType)}, nil
}
`))

var scaffoldTest = template.Must(template.New("test").Parse(`// internal/workers/{{.Category}}/{{.TaskType}}/handler_test.go
package {{.Package}}

import (
	"context"
	"testing"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/workflow"

	"github.com/stretchr/testify/assert"
)

func TestHandler_Run(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewNoOpLogger())
	res := h.Run(context.Background(), &workflow.StepRequest{Parameters: map[string]string{
{{- range .Fields}}
		"{{.Param}}": "value",
{{- end}}
	}})
	assert.True(t, res.OK(), "%+v", res.Error)
}
`))

func init() {
	scaffoldCmd.Flags().StringVar(&scaffoldOut, "out", "internal/workers", "root directory for generated packages")
	scaffoldCmd.Flags().BoolVar(&scaffoldForce, "force", false, "overwrite existing files")
	rootCmd.AddCommand(scaffoldCmd)
}
