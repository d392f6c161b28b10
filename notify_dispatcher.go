package gatekeeper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// notifyDispatcher hands login notifications to the sink from one
// goroutine so a slow Kafka broker or log writer never holds up a login.
// Each delivery gets its own deadline; a sink that panics is logged and
// counted and the next event is still delivered.
type notifyDispatcher struct {
	sink    NotificationSink
	timeout time.Duration
	block   bool
	metrics *Metrics
	logger  *zap.Logger

	queue   chan NotificationEvent
	stop    chan struct{}
	stopped chan struct{}
	dropped atomic.Uint64
	closing atomic.Bool
	once    sync.Once
}

func newNotifyDispatcher(cfg NotifyConfig, sink NotificationSink, metrics *Metrics, logger *zap.Logger) *notifyDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	d := &notifyDispatcher{
		sink:    sink,
		timeout: timeout,
		block:   !cfg.DropIfFull,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan NotificationEvent, max(cfg.BufferSize, 1)),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *notifyDispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for n := len(d.queue); n > 0; n-- {
				d.deliver(<-d.queue)
			}
			return
		}
	}
}

func (d *notifyDispatcher) deliver(event NotificationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Inc(MetricNotifyFailure)
			d.logger.Error("notification sink panicked",
				zap.String("event", event.Type),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	d.sink.Emit(ctx, event)
	if ctx.Err() != nil {
		d.metrics.Inc(MetricNotifyFailure)
		d.logger.Warn("notification delivery timed out",
			zap.String("event", event.Type),
			zap.Duration("timeout", d.timeout),
		)
		return
	}
	d.metrics.Inc(MetricNotifyDelivered)
}

// Emit queues event. Unless the dispatcher blocks when full, a full queue
// drops and counts the event instead of holding up the request.
func (d *notifyDispatcher) Emit(ctx context.Context, event NotificationEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !d.block {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
			d.logger.Warn("notification dropped", zap.String("event", event.Type))
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events and delivers what is already queued.
func (d *notifyDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.stopped
	})
}

func (d *notifyDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
