// internal/workers/communication/send-notification/handler.go
package sendnotification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awsclient "infra-chatops/internal/common/aws"
	httpclient "infra-chatops/internal/common/http"
	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/workflow"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

const (
	TaskType = "send-notification"
)

var (
	ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")
	ErrUnknownChannel         = errors.New("UNKNOWN_CHANNEL")
	ErrChannelDisabled        = errors.New("CHANNEL_DISABLED")
	ErrEmptyMessage           = errors.New("EMPTY_MESSAGE")
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type WebhookPoster interface {
	PostJSON(ctx context.Context, url string, payload interface{}) ([]byte, error)
}

type Handler struct {
	config    *Config
	logger    logger.Logger
	sink      Sink
	sesClient SESService
	snsClient SNSService
	webhook   WebhookPoster
}

type Option func(*Handler)

func WithSES(s SESService) Option { return func(h *Handler) { h.sesClient = s } }

func WithSNS(s SNSService) Option { return func(h *Handler) { h.snsClient = s } }

func WithWebhook(w WebhookPoster) Option { return func(h *Handler) { h.webhook = w } }

// NewHandler builds the notification handler. AWS clients are created from
// the default credential chain only for enabled channels that were not
// supplied through options.
func NewHandler(config *Config, sink Sink, log logger.Logger, opts ...Option) (*Handler, error) {
	h := &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sink:   sink,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.sink == nil {
		h.sink = NewLogSink(h.logger)
	}
	if h.webhook == nil {
		h.webhook = httpclient.NewClient(config.Timeout)
	}

	needSES := config.EmailEnabled && h.sesClient == nil
	needSNS := config.SMSEnabled && h.snsClient == nil
	if needSES || needSNS {
		clients, err := awsclient.Load(context.Background(), config.AWSRegion, needSES, needSNS)
		if err != nil {
			return nil, err
		}
		if needSES {
			h.sesClient = clients.SES
		}
		if needSNS {
			h.snsClient = clients.SNS
		}
	}
	return h, nil
}

func (h *Handler) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	input := &Input{
		Message: req.Parameters["message"],
		Channel: req.Parameters["channel"],
		Level:   req.Parameters["level"],
		Format:  req.Parameters["format"],
		Subject: req.Parameters["subject"],
	}

	output, err := h.deliver(ctx, input, req.InstanceID, req.Workflow)
	if err != nil {
		kind := workflow.ErrorExternalFailure
		if errors.Is(err, ErrUnknownChannel) || errors.Is(err, ErrChannelDisabled) || errors.Is(err, ErrEmptyMessage) {
			kind = workflow.ErrorInvalidInput
		}
		return workflow.Fail(kind, "%v", err)
	}

	out, err := workflow.OutputOf(output)
	if err != nil {
		return workflow.Fail(workflow.ErrorInvalidOutput, "encode output: %v", err)
	}
	return workflow.Ok(out)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.deliver(ctx, input, "", "")
}

func (h *Handler) deliver(ctx context.Context, input *Input, instanceID, workflowName string) (*Output, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, ErrEmptyMessage
	}

	output := &Output{
		Message:   input.Message,
		Channel:   input.Channel,
		Level:     input.Level,
		Format:    input.Format,
		MessageID: uuid.New().String(),
	}
	if output.Channel == "" {
		output.Channel = h.config.DefaultChannel
	}
	if output.Level == "" {
		output.Level = LevelInfo
	}
	if output.Format == "" {
		output.Format = FormatText
	}

	kind, target, _ := strings.Cut(output.Channel, ":")
	if target == "" && (kind == ChannelEmail || kind == ChannelSMS || kind == ChannelSNS) {
		return nil, fmt.Errorf("%w: %s channel needs a target, e.g. %s:<address>", ErrUnknownChannel, kind, kind)
	}

	var err error
	switch kind {
	case ChannelChat:
		err = h.sink.Deliver(ctx, Message{
			ID:         output.MessageID,
			InstanceID: instanceID,
			Workflow:   workflowName,
			Text:       output.Message,
			Level:      output.Level,
			Format:     output.Format,
			SentAt:     time.Now().UTC(),
		})
	case ChannelWebhook:
		url := target
		if url == "" {
			url = h.config.WebhookURL
		}
		if url == "" {
			return nil, fmt.Errorf("%w: webhook url not configured", ErrChannelDisabled)
		}
		_, err = h.webhook.PostJSON(ctx, url, map[string]interface{}{
			"id":          output.MessageID,
			"instance_id": instanceID,
			"workflow":    workflowName,
			"text":        output.Message,
			"level":       output.Level,
			"format":      output.Format,
		})
	case ChannelEmail:
		if !h.config.EmailEnabled || h.sesClient == nil {
			return nil, fmt.Errorf("%w: email", ErrChannelDisabled)
		}
		err = h.sendEmail(ctx, target, subjectFor(input, workflowName), output.Message)
	case ChannelSMS:
		if !h.config.SMSEnabled || h.snsClient == nil {
			return nil, fmt.Errorf("%w: sms", ErrChannelDisabled)
		}
		err = h.publish(ctx, &sns.PublishInput{PhoneNumber: aws.String(target), Message: aws.String(output.Message)})
	case ChannelSNS:
		if h.snsClient == nil {
			return nil, fmt.Errorf("%w: sns", ErrChannelDisabled)
		}
		err = h.publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(target),
			Subject:  aws.String(subjectFor(input, workflowName)),
			Message:  aws.String(output.Message),
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, output.Channel)
	}

	if err != nil {
		h.logger.Error("notification send failed", map[string]interface{}{
			"error":   err,
			"channel": output.Channel,
		})
		return nil, fmt.Errorf("%w: %s: %v", ErrNotificationSendFailed, kind, err)
	}

	output.Delivered = true
	h.logger.Info("notification sent", map[string]interface{}{
		"channel":   output.Channel,
		"level":     output.Level,
		"messageId": output.MessageID,
	})
	return output, nil
}

func subjectFor(input *Input, workflowName string) string {
	if input.Subject != "" {
		return input.Subject
	}
	if workflowName != "" {
		return "ChatOps: " + workflowName
	}
	return "ChatOps notification"
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) publish(ctx context.Context, input *sns.PublishInput) error {
	_, err := h.snsClient.Publish(ctx, input)
	return err
}
