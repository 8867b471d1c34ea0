// Package notify delivers supervisor alerts and caller callbacks. Actual SMS
// delivery is out of scope: LogNotifier records what would have been sent.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"frontdesk/outbox"

	"go.uber.org/zap"
)

const (
	// TopicEscalated is enqueued when a help request is created.
	TopicEscalated = "help_request.escalated"
	// TopicResolved is enqueued when a supervisor's answer is committed.
	TopicResolved = "help_request.resolved"
)

// SupervisorAlert asks a supervisor to answer a caller's question.
type SupervisorAlert struct {
	RequestID   string `json:"request_id"`
	CallerName  string `json:"caller_name"`
	CallerPhone string `json:"caller_phone"`
	Question    string `json:"question"`
}

// Callback carries a supervisor's answer back to the caller.
type Callback struct {
	RequestID   string `json:"request_id"`
	CallerName  string `json:"caller_name"`
	CallerPhone string `json:"caller_phone"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
}

// Notifier is the delivery collaborator.
type Notifier interface {
	NotifySupervisor(ctx context.Context, alert SupervisorAlert) error
	NotifyCaller(ctx context.Context, cb Callback) error
}

func SupervisorMessage(a SupervisorAlert) string {
	return fmt.Sprintf("Hey, I need help answering: %q", a.Question)
}

func CallbackMessage(cb Callback) string {
	return fmt.Sprintf("Hi %s, regarding your question: '%s' - %s", cb.CallerName, cb.Question, cb.Answer)
}

// LogNotifier writes the outgoing texts to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifySupervisor(_ context.Context, a SupervisorAlert) error {
	n.logger.Info("supervisor notified",
		zap.String("request_id", a.RequestID),
		zap.String("caller_name", a.CallerName),
		zap.String("message", SupervisorMessage(a)))
	return nil
}

func (n *LogNotifier) NotifyCaller(_ context.Context, cb Callback) error {
	n.logger.Info("texting caller",
		zap.String("request_id", cb.RequestID),
		zap.String("caller_name", cb.CallerName),
		zap.String("caller_phone", cb.CallerPhone),
		zap.String("message", CallbackMessage(cb)))
	return nil
}

// Handlers maps the notification topics onto n for an outbox.Dispatcher.
func Handlers(n Notifier) map[string]outbox.Handler {
	return map[string]outbox.Handler{
		TopicEscalated: func(ctx context.Context, payload json.RawMessage) error {
			var a SupervisorAlert
			if err := json.Unmarshal(payload, &a); err != nil {
				return fmt.Errorf("notify: decode supervisor alert: %w", err)
			}
			return n.NotifySupervisor(ctx, a)
		},
		TopicResolved: func(ctx context.Context, payload json.RawMessage) error {
			var cb Callback
			if err := json.Unmarshal(payload, &cb); err != nil {
				return fmt.Errorf("notify: decode callback: %w", err)
			}
			return n.NotifyCaller(ctx, cb)
		},
	}
}
