// Package kafkasink publishes gatekeeper notifications to a Kafka topic so an
// out-of-process notifier can deliver them.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/gatekeeper"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the producer.
type Config struct {
	Brokers []string
	Topic   string
	// WriteTimeout bounds one publish. Defaults to 5s.
	WriteTimeout time.Duration
}

// Sink implements gatekeeper.NotificationSink. Events are keyed by type so
// one type stays ordered within a partition.
type Sink struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a synchronous writer; the engine's dispatcher already keeps
// publishing off the request path.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkasink: empty topic")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newSink(writer, cfg.WriteTimeout, logger), nil
}

func newSink(w messageWriter, timeout time.Duration, logger *zap.Logger) *Sink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writer: w, timeout: timeout, logger: logger}
}

// Emit publishes event. Failures are logged and dropped.
func (s *Sink) Emit(ctx context.Context, event gatekeeper.NotificationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encode notification", zap.String("type", event.Type), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: payload,
		Time:  event.Timestamp,
	})
	if err != nil {
		s.logger.Warn("publish notification failed", zap.String("type", event.Type), zap.Error(err))
	}
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
