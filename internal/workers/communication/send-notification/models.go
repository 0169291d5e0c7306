// internal/workers/communication/send-notification/models.go
package sendnotification

import "time"

type Input struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"` // chat, webhook, email:<addr>, sms:<number>, sns:<topicArn>
	Level   string `json:"level,omitempty"`
	Format  string `json:"format,omitempty"`
	Subject string `json:"subject,omitempty"`
}

type Output struct {
	Message   string `json:"message"`
	Channel   string `json:"channel"`
	Level     string `json:"level"`
	Format    string `json:"format"`
	Delivered bool   `json:"delivered"`
	MessageID string `json:"message_id"`
}

// Message is what a chat sink receives.
type Message struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id,omitempty"`
	Workflow   string    `json:"workflow,omitempty"`
	Text       string    `json:"text"`
	Level      string    `json:"level"`
	Format     string    `json:"format"`
	SentAt     time.Time `json:"sent_at"`
}

// Channels
const (
	ChannelChat    = "chat"
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelSNS     = "sns"
)

// Levels
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Formats
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)
