package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/session"
)

// EventWriter is the storage side of the worker, satisfied by
// mongodb.EventStore.
type EventWriter interface {
	RecordBatch(ctx context.Context, events []session.Event) error
}

// Worker drains the event queue into durable storage. Batches that fail to
// write are retried up to maxAttempts times, then parked in the dead letter
// queue so one poison event cannot wedge the pipeline.
type Worker struct {
	queue        *EventQueue
	store        EventWriter
	logger       *zap.Logger
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewWorker creates a new queue worker
func NewWorker(queue *EventQueue, store EventWriter, batchSize int, logger *zap.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:        queue,
		store:        store,
		logger:       logger,
		batchSize:    batchSize,
		maxAttempts:  3,
		pollInterval: 500 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start begins processing in a background goroutine.
func (w *Worker) Start() {
	go w.run()
	w.logger.Info("Event queue worker started", zap.Int("batchSize", w.batchSize))
}

// Stop shuts the worker down and waits for the in-flight batch to finish.
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
	w.logger.Info("Event queue worker stopped")
}

func (w *Worker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			// Final drain so events enqueued during shutdown still land.
			w.drainOnce(context.Background())
			return
		case <-ticker.C:
			w.drainOnce(w.ctx)
		}
	}
}

// drainOnce moves one batch from the queue into storage.
func (w *Worker) drainOnce(ctx context.Context) {
	messages, err := w.queue.Dequeue(ctx, w.batchSize)
	if err != nil {
		w.logger.Warn("Failed to dequeue events", zap.Error(err))
	}
	if len(messages) == 0 {
		return
	}

	events := make([]session.Event, 0, len(messages))
	for _, msg := range messages {
		events = append(events, msg.Event)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = w.store.RecordBatch(writeCtx, events)
	cancel()
	if err == nil {
		w.logger.Debug("Persisted event batch", zap.Int("count", len(events)))
		return
	}

	w.logger.Warn("Failed to persist event batch, requeueing", zap.Error(err), zap.Int("count", len(messages)))
	for _, msg := range messages {
		if msg.Attempts+1 >= w.maxAttempts {
			if dlqErr := w.queue.MoveToDeadLetter(ctx, msg); dlqErr != nil {
				w.logger.Error("Failed to park event in dead letter queue", zap.Error(dlqErr))
			}
			continue
		}
		if retryErr := w.queue.Retry(ctx, msg); retryErr != nil {
			w.logger.Error("Failed to requeue event", zap.Error(retryErr))
		}
	}
}
