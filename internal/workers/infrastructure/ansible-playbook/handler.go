// internal/workers/infrastructure/ansible-playbook/handler.go
package ansibleplaybook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/runner"
	"infra-chatops/internal/workflow"
)

const (
	TaskType = "ansible-playbook"
)

var (
	ErrPlaybookRequired = errors.New("PLAYBOOK_REQUIRED")
	ErrPlaybookFailed   = errors.New("PLAYBOOK_FAILED")
)

var (
	recapLine = regexp.MustCompile(`^(\S+)\s*:\s*(ok=\d+.*)$`)
	recapPair = regexp.MustCompile(`(\w+)=(\d+)`)
)

type Handler struct {
	config *Config
	runner runner.CommandRunner
	logger logger.Logger
}

func NewHandler(config *Config, r runner.CommandRunner, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		runner: r,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	check, _ := strconv.ParseBool(req.Param("check", "false"))
	input := &Input{
		Playbook:  req.Parameters["playbook"],
		Inventory: req.Parameters["inventory"],
		ExtraVars: req.Prefixed("extra_vars"),
		Limit:     req.Parameters["limit"],
		Tags:      req.Parameters["tags"],
		Check:     check,
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		var partial map[string]interface{}
		if output != nil {
			partial, _ = workflow.OutputOf(output)
		}
		switch {
		case errors.Is(err, ErrPlaybookRequired):
			return workflow.Fail(workflow.ErrorInvalidInput, "%v", err)
		case errors.Is(err, context.DeadlineExceeded):
			return workflow.FailWithOutput(workflow.ErrorTimeout, partial, "%v", err)
		default:
			return workflow.FailWithOutput(workflow.ErrorExternalFailure, partial, "%v", err)
		}
	}

	out, err := workflow.OutputOf(output)
	if err != nil {
		return workflow.Fail(workflow.ErrorInvalidOutput, "encode output: %v", err)
	}
	return workflow.Ok(out)
}

// Execute runs the playbook. On a failed run it returns the parsed recap
// along with the error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Playbook) == "" {
		return nil, ErrPlaybookRequired
	}

	args := []string{resolve(h.config.PlaybookDir, input.Playbook)}
	if input.Inventory != "" {
		args = append(args, "-i", resolve(h.config.InventoryDir, input.Inventory))
	}

	if len(input.ExtraVars) > 0 {
		path, err := writeExtraVars(input.ExtraVars)
		if err != nil {
			return nil, err
		}
		defer os.Remove(path)
		args = append(args, "--extra-vars", "@"+path)
	}
	if input.Limit != "" {
		args = append(args, "--limit", input.Limit)
	}
	if input.Tags != "" {
		args = append(args, "--tags", input.Tags)
	}
	if input.Check {
		args = append(args, "--check")
	}

	cmd := runner.Command{
		Name: h.config.Binary,
		Args: args,
		Env:  []string{"ANSIBLE_NOCOLOR=1", "ANSIBLE_FORCE_COLOR=0", "ANSIBLE_RETRY_FILES_ENABLED=0"},
	}
	log := h.logger.WithFields(map[string]interface{}{"playbook": input.Playbook})
	log.Info("running playbook", map[string]interface{}{"command": cmd.String()})

	res, runErr := h.runner.Run(ctx, cmd)
	output := &Output{Playbook: input.Playbook, Check: input.Check, Hosts: map[string]HostStats{}}
	if res != nil {
		output.Hosts = ParseRecap(res.Stdout)
		output.ExitCode = res.ExitCode
	}
	for _, s := range output.Hosts {
		output.Ok += s.Ok
		output.Changed += s.Changed
		output.Unreachable += s.Unreachable
		output.Failed += s.Failed
	}
	output.HostCount = len(output.Hosts)

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, fmt.Errorf("playbook %s: %w", input.Playbook, ctxErr)
		}
		log.Error("playbook failed", map[string]interface{}{
			"error":       runErr,
			"failed":      output.Failed,
			"unreachable": output.Unreachable,
		})
		return output, fmt.Errorf("%w: %s: %d failed, %d unreachable: %v",
			ErrPlaybookFailed, input.Playbook, output.Failed, output.Unreachable, runErr)
	}

	log.Info("playbook completed", map[string]interface{}{"hosts": output.HostCount, "changed": output.Changed})
	return output, nil
}

func resolve(base, p string) string {
	if base == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func writeExtraVars(vars map[string]string) (string, error) {
	data, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("encode extra vars: %w", err)
	}
	f, err := os.CreateTemp("", "chatops-*.vars.json")
	if err != nil {
		return "", fmt.Errorf("create extra vars file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write extra vars file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write extra vars file: %w", err)
	}
	return f.Name(), nil
}

// ParseRecap extracts the per-host counters from the PLAY RECAP section.
func ParseRecap(stdout string) map[string]HostStats {
	hosts := map[string]HostStats{}
	inRecap := false
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "PLAY RECAP") {
			inRecap = true
			continue
		}
		if !inRecap {
			continue
		}
		m := recapLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var s HostStats
		for _, pair := range recapPair.FindAllStringSubmatch(m[2], -1) {
			n, _ := strconv.Atoi(pair[2])
			switch pair[1] {
			case "ok":
				s.Ok = n
			case "changed":
				s.Changed = n
			case "unreachable":
				s.Unreachable = n
			case "failed":
				s.Failed = n
			case "skipped":
				s.Skipped = n
			case "rescued":
				s.Rescued = n
			case "ignored":
				s.Ignored = n
			}
		}
		hosts[m[1]] = s
	}
	return hosts
}
