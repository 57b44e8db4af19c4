package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/session"
)

const (
	// eventQueueKey is the Redis list holding pending audit events.
	eventQueueKey = "session:events"
	// deadLetterKey holds events that exhausted their retry budget.
	deadLetterKey = "session:events:dead"
)

// QueueMessage wraps one audit event with its delivery bookkeeping.
type QueueMessage struct {
	Event    session.Event `json:"event"`
	Attempts int           `json:"attempts"`
}

// EventQueue buffers session audit events in Redis so a slow or unavailable
// MongoDB never backpressures the session engine. It implements
// session.EventSink.
type EventQueue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewEventQueue creates a new Redis-backed event queue
func NewEventQueue(client *redis.Client, logger *zap.Logger) *EventQueue {
	return &EventQueue{
		client: client,
		logger: logger,
	}
}

// Record enqueues one audit event. Satisfies session.EventSink.
func (q *EventQueue) Record(ctx context.Context, event session.Event) error {
	msg := QueueMessage{Event: event}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := q.client.RPush(ctx, eventQueueKey, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to push event to queue: %w", err)
	}

	q.logger.Debug("Event enqueued",
		zap.String("eventType", event.Type),
		zap.String("sessionId", event.SessionID))
	return nil
}

// Dequeue retrieves and removes up to limit messages from the queue. An
// empty queue returns a nil slice, not an error.
func (q *EventQueue) Dequeue(ctx context.Context, limit int) ([]QueueMessage, error) {
	var messages []QueueMessage
	for len(messages) < limit {
		result, err := q.client.LPop(ctx, eventQueueKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return messages, fmt.Errorf("failed to pop event from queue: %w", err)
		}

		var msg QueueMessage
		if err := json.Unmarshal([]byte(result), &msg); err != nil {
			q.logger.Warn("Dropping undecodable queue message", zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Retry puts a message back at the tail of the queue with its attempt
// counter bumped.
func (q *EventQueue) Retry(ctx context.Context, msg QueueMessage) error {
	msg.Attempts++
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := q.client.RPush(ctx, eventQueueKey, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to requeue event: %w", err)
	}

	q.logger.Info("Event requeued for retry",
		zap.String("eventType", msg.Event.Type),
		zap.Int("attempts", msg.Attempts))
	return nil
}

// MoveToDeadLetter parks a message that exhausted its retries.
func (q *EventQueue) MoveToDeadLetter(ctx context.Context, msg QueueMessage) error {
	msg.Attempts++
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := q.client.RPush(ctx, deadLetterKey, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to push event to dead letter queue: %w", err)
	}

	q.logger.Warn("Event moved to dead letter queue",
		zap.String("eventType", msg.Event.Type),
		zap.String("sessionId", msg.Event.SessionID),
		zap.Int("attempts", msg.Attempts))
	return nil
}

// Length returns the number of pending events.
func (q *EventQueue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, eventQueueKey).Result()
}

// DeadLetterLength returns the number of parked events.
func (q *EventQueue) DeadLetterLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, deadLetterKey).Result()
}

// WaitIdle polls until the queue drains or the timeout elapses. Used by
// graceful shutdown so buffered events reach storage.
func (q *EventQueue) WaitIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := q.Length(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("event queue not drained after %s", timeout)
}
