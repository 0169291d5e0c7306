// internal/workers/cicd/jenkins-job/handler.go
package jenkinsjob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/workflow"
)

const (
	TaskType = "jenkins-job"
)

var (
	ErrJobRequired    = errors.New("JOB_REQUIRED")
	ErrNotConfigured  = errors.New("JENKINS_NOT_CONFIGURED")
	ErrQueueCancelled = errors.New("QUEUE_ITEM_CANCELLED")
	ErrQueueTimeout   = errors.New("QUEUE_TIMEOUT")
	ErrBuildTimeout   = errors.New("BUILD_TIMEOUT")
	ErrBuildFailed    = errors.New("BUILD_FAILED")
	ErrJenkinsRequest = errors.New("JENKINS_REQUEST_FAILED")
)

type Handler struct {
	config *Config
	client *Client
	logger logger.Logger
}

func NewHandler(config *Config, doer Doer, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		client: NewClient(config, doer),
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	wait, err := strconv.ParseBool(req.Param("wait", "true"))
	if err != nil {
		return workflow.Fail(workflow.ErrorInvalidInput, "wait must be true or false, got %q", req.Parameters["wait"])
	}
	input := &Input{
		Job:        req.Parameters["job"],
		Wait:       wait,
		Parameters: req.Prefixed("parameters"),
	}

	output, err := h.Execute(ctx, input)
	var partial map[string]interface{}
	if output != nil {
		if partial, _ = workflow.OutputOf(output); partial == nil {
			partial = map[string]interface{}{}
		}
	}

	switch {
	case err == nil:
		return workflow.Ok(partial)
	case errors.Is(err, ErrJobRequired), errors.Is(err, ErrNotConfigured):
		return workflow.Fail(workflow.ErrorInvalidInput, "%v", err)
	case errors.Is(err, ErrQueueTimeout), errors.Is(err, ErrBuildTimeout), errors.Is(err, context.DeadlineExceeded):
		return workflow.FailWithOutput(workflow.ErrorTimeout, partial, "%v", err)
	default:
		return workflow.FailWithOutput(workflow.ErrorExternalFailure, partial, "%v", err)
	}
}

// Execute triggers the job and, when input.Wait is set, follows the build to
// completion. The output is returned with the error when a build ran but failed.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	job := strings.TrimSpace(input.Job)
	if job == "" {
		return nil, ErrJobRequired
	}
	if h.config.URL == "" {
		return nil, ErrNotConfigured
	}
	log := h.logger.WithFields(map[string]interface{}{"job": job})

	location, queueID, err := h.client.Trigger(ctx, job, input.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJenkinsRequest, err)
	}
	log.Info("job queued", map[string]interface{}{"queueId": queueID})

	output := &Output{Job: job, QueueID: queueID, Result: ResultQueued, Queued: true}

	number, buildURL, err := h.waitForExecutable(ctx, location)
	if err != nil {
		if errors.Is(err, ErrQueueTimeout) && !input.Wait {
			log.Warn("job queued but not started within timeout", nil)
			return output, nil
		}
		return output, err
	}

	output.Queued = false
	output.BuildNumber = number
	output.URL = buildURL
	output.Result = ResultStarted
	log.Info("build started", map[string]interface{}{"buildNumber": number})

	if !input.Wait {
		return output, nil
	}

	info, err := h.waitForBuild(ctx, job, number)
	if err != nil {
		return output, err
	}
	output.Result = info.Result
	output.DurationMs = info.Duration
	if info.URL != "" {
		output.URL = info.URL
	}

	if info.Result != ResultSuccess {
		log.Error("build finished unsuccessfully", map[string]interface{}{"result": info.Result})
		return output, fmt.Errorf("%w: %s #%d finished with %s", ErrBuildFailed, job, number, info.Result)
	}
	log.Info("build succeeded", map[string]interface{}{"buildNumber": number, "durationMs": info.Duration})
	return output, nil
}

func (h *Handler) waitForExecutable(ctx context.Context, location string) (int, string, error) {
	if location == "" {
		return 0, "", fmt.Errorf("%w: jenkins did not return a queue location", ErrJenkinsRequest)
	}
	deadline := time.Now().Add(h.config.QueueTimeout)
	for {
		item, err := h.client.QueueItem(ctx, location)
		if err != nil {
			return 0, "", fmt.Errorf("%w: %v", ErrJenkinsRequest, err)
		}
		if item.Cancelled {
			return 0, "", fmt.Errorf("%w: %s", ErrQueueCancelled, item.Why)
		}
		if item.Executable != nil && item.Executable.Number > 0 {
			return item.Executable.Number, item.Executable.URL, nil
		}
		if time.Now().After(deadline) {
			return 0, "", fmt.Errorf("%w: still queued after %s: %s", ErrQueueTimeout, h.config.QueueTimeout, item.Why)
		}
		if err := h.sleep(ctx); err != nil {
			return 0, "", err
		}
	}
}

func (h *Handler) waitForBuild(ctx context.Context, job string, number int) (*buildInfo, error) {
	deadline := time.Now().Add(h.config.BuildTimeout)
	for {
		info, err := h.client.Build(ctx, job, number)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJenkinsRequest, err)
		}
		if !info.Building && info.Result != "" {
			return info, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s #%d still running after %s", ErrBuildTimeout, job, number, h.config.BuildTimeout)
		}
		if err := h.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

func (h *Handler) sleep(ctx context.Context) error {
	t := time.NewTimer(h.config.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
