package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"viewings/backend/internal/telemetry"
)

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

type job struct {
	msg         Message
	traceparent string
	tracestate  string
}

// Dispatcher delivers messages on a bounded pool of workers. Enqueue never blocks: a
// full queue drops the message and logs it.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	timeout time.Duration
	queue   chan job
	drops   metric.Int64Counter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sender:  sender,
		logger:  logger.With("component", "notify"),
		timeout: cfg.SendTimeout,
		queue:   make(chan job, cfg.QueueSize),
		drops:   telemetry.NotificationDrops(),
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, msg, "dispatcher closed")
		return
	}

	tp, ts := telemetry.TraceContextStrings(ctx)
	select {
	case d.queue <- job{msg: msg, traceparent: tp, tracestate: ts}:
	default:
		d.drop(ctx, msg, "queue full")
	}
}

// Close stops accepting messages and waits for queued ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("notification queue not drained"), ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx := telemetry.ContextWithTraceContext(context.Background(), j.traceparent, j.tracestate)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "notify.send")
	defer span.End()
	span.SetAttributes(attribute.String("notify.template", string(j.msg.Template)))

	if err := d.sender.Send(ctx, j.msg); err != nil {
		span.RecordError(err)
		d.drops.Add(ctx, 1, metric.WithAttributes(attribute.String("template", string(j.msg.Template))))
		d.logger.Warn("notification failed",
			"id", j.msg.ID,
			"template", string(j.msg.Template),
			"to", j.msg.To,
			"err", err,
		)
	}
}

func (d *Dispatcher) drop(ctx context.Context, msg Message, reason string) {
	d.drops.Add(ctx, 1, metric.WithAttributes(attribute.String("template", string(msg.Template))))
	d.logger.Warn("notification dropped",
		"id", msg.ID,
		"template", string(msg.Template),
		"to", msg.To,
		"reason", reason,
	)
}
