// internal/workers/communication/send-notification/sink.go
package sendnotification

import (
	"context"
	"sync"

	"infra-chatops/internal/common/logger"
)

// Sink receives chat-channel messages. The chat layer that owns the
// conversation decides how they reach the user.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// RecordingSink keeps delivered messages per instance so adapters can
// return them with the report.
type RecordingSink struct {
	mu       sync.Mutex
	messages map[string][]Message
	order    []Message
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{messages: make(map[string][]Message)}
}

func (s *RecordingSink) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.InstanceID] = append(s.messages[msg.InstanceID], msg)
	s.order = append(s.order, msg)
	return nil
}

// Messages returns the messages delivered for one instance.
func (s *RecordingSink) Messages(instanceID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[instanceID]...)
}

// All returns every delivered message in delivery order.
func (s *RecordingSink) All() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.order...)
}

// LogSink writes chat messages to the structured log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Deliver(_ context.Context, msg Message) error {
	s.logger.Info("chat message", map[string]interface{}{
		"instanceId": msg.InstanceID,
		"level":      msg.Level,
		"text":       msg.Text,
	})
	return nil
}
