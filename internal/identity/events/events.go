// Package events delivers terminal operation notifications to the log, to a
// background worker, and to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"identityvault/internal/identity/orchestrator"
)

// Sink receives notifications off the request path.
type Sink interface {
	Publish(ctx context.Context, n orchestrator.Notification) error
}

// LogNotifier writes every notification to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n orchestrator.Notification) {
	attrs := []any{
		"operation_id", n.OperationID,
		"kind", n.Kind,
		"address", n.Address,
		"outcome", n.Outcome,
		"tx_hash", n.TxHash,
	}
	if n.Outcome == orchestrator.OutcomeFailed {
		l.logger.WarnContext(ctx, n.Message, append(attrs, "error_code", n.ErrorCode)...)
		return
	}
	l.logger.InfoContext(ctx, n.Message, attrs...)
}

// FanOut forwards to every notifier in order.
type FanOut []orchestrator.Notifier

func (f FanOut) Notify(ctx context.Context, n orchestrator.Notification) {
	for _, notifier := range f {
		notifier.Notify(ctx, n)
	}
}

// Queue is a Notifier that hands notifications to a Worker through a bounded
// channel. Notify never blocks; when the buffer is full the notification is
// dropped and counted.
type Queue struct {
	ch      chan orchestrator.Notification
	dropped atomic.Int64
	logger  *slog.Logger
}

func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan orchestrator.Notification, capacity), logger: logger}
}

func (q *Queue) Notify(ctx context.Context, n orchestrator.Notification) {
	select {
	case q.ch <- n:
	default:
		q.dropped.Add(1)
		q.logger.WarnContext(ctx, "notification queue full, dropping",
			"operation_id", n.OperationID,
			"address", n.Address,
		)
	}
}

// Dropped returns how many notifications were discarded.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Worker drains a Queue into a Sink.
type Worker struct {
	sink   Sink
	inbox  <-chan orchestrator.Notification
	logger *slog.Logger
}

func NewWorker(sink Sink, queue *Queue, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: queue.ch, logger: logger}
}

// Run publishes until ctx is done. Publish failures are logged and the
// notification is not retried.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-w.inbox:
			if err := w.sink.Publish(ctx, n); err != nil {
				w.logger.ErrorContext(ctx, "failed to publish notification",
					"operation_id", n.OperationID,
					"address", n.Address,
					"error", err,
				)
			}
		}
	}
}

// Publisher is the Kafka producer surface KafkaSink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink publishes notifications as JSON keyed by address, so every
// notification for one account lands on the same partition.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaSink(publisher Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (k *KafkaSink) Publish(ctx context.Context, n orchestrator.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return k.publisher.Publish(ctx, k.topic, []byte(n.Address), value, map[string]string{
		"kind":    string(n.Kind),
		"outcome": string(n.Outcome),
	})
}

// Decode parses a notification published by KafkaSink.
func Decode(value []byte) (orchestrator.Notification, error) {
	var n orchestrator.Notification
	if err := json.Unmarshal(value, &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}
