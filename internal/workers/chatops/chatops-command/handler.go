package chatopscommand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "infra-chatops/internal/common/errors"
	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/metrics"
	"infra-chatops/internal/service"
	"infra-chatops/internal/workflow"
)

const (
	TaskType = "chatops-command"
)

// Commands is the part of *service.Service the worker needs.
type Commands interface {
	SubmitCommand(ctx context.Context, req service.Request) (string, error)
	GetReport(ctx context.Context, id string) (*workflow.Report, error)
	Wait(ctx context.Context, id string) (*workflow.Report, error)
}

// Handler lets a BPMN process hand chat text to the command service. A
// Failed workflow is thrown as a WORKFLOW_FAILED BPMN error so the model can
// route it; rejections and gate errors are thrown with their own codes.
type Handler struct {
	config   *Config
	commands Commands
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, commands Commands, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		commands: commands,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, apperrors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.fail(ctx, client, job, apperrors.NewInternalError(err))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		metrics.ZeebeJobsTotal.WithLabelValues("complete_failed").Inc()
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.ZeebeJobsTotal.WithLabelValues("completed").Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":     job.Key,
		"instanceId": output.InstanceID,
		"status":     output.Status,
	})
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.ZeebeJobsTotal.WithLabelValues("failed").Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

// Execute submits the command and, when waiting, blocks until the instance is
// terminal. A wait that runs out of time returns the current progress.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Text == "" {
		return nil, apperrors.NewInvalidInputError("text is required")
	}

	id, err := h.commands.SubmitCommand(ctx, service.Request{
		Text:      input.Text,
		UserID:    input.UserID,
		ChannelID: input.ChannelID,
	})
	if err != nil {
		return nil, service.AsStandardError(err, "")
	}

	wait := h.config.WaitForResult
	if input.Wait != nil {
		wait = *input.Wait
	}

	var report *workflow.Report
	if wait {
		report, err = h.commands.Wait(ctx, id)
		if errors.Is(err, context.DeadlineExceeded) {
			report, err = h.commands.GetReport(context.WithoutCancel(ctx), id)
		}
	} else {
		report, err = h.commands.GetReport(ctx, id)
	}
	if err != nil {
		return nil, service.AsStandardError(err, id)
	}

	text := service.ResponseText(report)
	if report.Status == workflow.StateFailed {
		return nil, apperrors.NewWorkflowFailedError(report.Workflow, text).
			WithMetadata("instanceId", id).
			WithMetadata("responseText", text).
			WithMetadata("failedStep", report.FailedStep)
	}

	return &Output{
		InstanceID:   id,
		Status:       string(report.Status),
		ResponseText: text,
		Terminal:     report.Terminal(),
	}, nil
}
