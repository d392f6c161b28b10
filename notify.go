package gatekeeper

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notification event types. The values are the titles shown to the operator.
const (
	EventLoginSuccess       = "Successful Login"
	EventLoginLockout       = "Login Lockout"
	EventGoogleLoginSuccess = "Successful Google Login"
	EventGoogleLoginDenied  = "Unauthorized Google Login Attempt"
)

// NotificationEvent asks an external collaborator to tell the operator about
// a login outcome. Delivery is not this package's concern.
type NotificationEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Details   map[string]string `json:"details,omitempty"`
}

// NotificationSink receives events from the dispatcher goroutine. Emit must
// not panic; errors are the sink's to log.
type NotificationSink interface {
	Emit(ctx context.Context, event NotificationEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, NotificationEvent) {}

// ChannelSink forwards events to a buffered channel. Useful in tests.
type ChannelSink struct {
	events chan NotificationEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan NotificationEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event NotificationEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan NotificationEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event NotificationEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LogSink records events through a zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event NotificationEvent) {
	fields := make([]zap.Field, 0, len(event.Details)+2)
	fields = append(fields, zap.String("event", event.Type), zap.Time("at", event.Timestamp))
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}
	s.logger.Info("notification", fields...)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []NotificationSink

func (m MultiSink) Emit(ctx context.Context, event NotificationEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
