package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker drains the outbox on a fixed interval.
type Worker struct {
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int
	logger     *zap.Logger
}

// NewWorker constructs a worker. Non-positive values fall back to 1s / 50.
func NewWorker(dispatcher *Dispatcher, interval time.Duration, batchSize int, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{dispatcher: dispatcher, interval: interval, batchSize: batchSize, logger: logger}
}

// Run dispatches until ctx is cancelled. A full batch is followed immediately
// by another round instead of waiting for the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		for {
			result, err := w.dispatcher.Dispatch(ctx, w.batchSize)
			if err != nil && ctx.Err() == nil {
				w.logger.Error("outbox dispatch failed", zap.Error(err))
			}
			if result.Failed > 0 {
				w.logger.Warn("outbox records failed",
					zap.Int("failed", result.Failed),
					zap.Int("dlq", result.DLQ),
				)
			}
			if err != nil || result.Claimed < w.batchSize || result.Sent == 0 || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
