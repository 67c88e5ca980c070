package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"crm_sync/internal/domain"
)

// DefaultFlushThreshold is the buffer size at which the queue hands a batch
// to the sink on its own.
const DefaultFlushThreshold = 2000

// ActionQueue buffers normalized actions and flushes them to the sink in
// batches. The buffer is snapshotted and cleared atomically, so every
// enqueued action reaches the sink exactly once: either in a threshold
// flush or in the final drain.
type ActionQueue struct {
	sink      Sink
	threshold int
	logger    *slog.Logger

	mu  sync.Mutex
	buf []domain.Action
}

func NewActionQueue(sink Sink, threshold int, logger *slog.Logger) *ActionQueue {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &ActionQueue{
		sink:      sink,
		threshold: threshold,
		logger:    logger,
	}
}

// Enqueue appends one action, flushing the whole buffer to the sink when it
// reaches the threshold. A delivery failure is returned but the failed
// snapshot is not re-buffered; delivery is fire-and-forget downstream.
func (q *ActionQueue) Enqueue(ctx context.Context, action domain.Action) error {
	q.mu.Lock()
	q.buf = append(q.buf, action)
	var batch []domain.Action
	if len(q.buf) >= q.threshold {
		batch = q.buf
		q.buf = nil
	}
	q.mu.Unlock()

	if batch == nil {
		return nil
	}
	return q.deliver(ctx, batch)
}

// Push enqueues a slice of actions in order. A flush failure partway
// through does not stop the remaining actions from being buffered; the
// first failure is reported after the whole slice is enqueued.
func (q *ActionQueue) Push(ctx context.Context, actions []domain.Action) error {
	var firstErr error
	for _, action := range actions {
		if err := q.Enqueue(ctx, action); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drain hands any buffered remainder to the sink. It must run before the
// process exits; the queue never drops actions on its own.
func (q *ActionQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	batch := q.buf
	q.buf = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return q.deliver(ctx, batch)
}

// Len reports the number of buffered actions.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *ActionQueue) deliver(ctx context.Context, batch []domain.Action) error {
	if err := q.sink.Deliver(ctx, batch); err != nil {
		q.logger.Error("action delivery failed", "count", len(batch), "error", err)
		return fmt.Errorf("deliver %d actions: %w", len(batch), err)
	}

	q.logger.Info("delivered actions", "count", len(batch))
	return nil
}
