package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// OutboxWorker drains the license outbox into the event publisher. Rows that
// keep failing are dead-lettered after maxRetries attempts.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
	now        func() time.Time
}

func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type OutboxBatch struct {
	Claimed      int
	Published    int
	Failed       int
	DeadLettered int
}

// ProcessOnce claims and publishes one batch.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (OutboxBatch, error) {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, w.now().Add(w.claimTTL))
	if err != nil {
		return OutboxBatch{}, err
	}

	batch := OutboxBatch{Claimed: len(records)}
	for _, rec := range records {
		now := w.now()
		if rec.RetryCount >= w.maxRetries {
			batch.DeadLettered++
			_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now)
			continue
		}
		if _, ok := ports.EventStream(rec.EventType); !ok {
			batch.DeadLettered++
			w.logger.ErrorContext(ctx, "outbox message has no stream",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "publish_event",
				"outcome", "failure",
				"outbox_id", rec.OutboxID,
				"event_type", rec.EventType,
			)
			_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "unknown event type "+rec.EventType, now)
			continue
		}
		err := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey)
		if err == nil {
			batch.Published++
			_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
			continue
		}

		batch.Failed++
		attempts := rec.RetryCount + 1
		fields := []any{
			"module", "events.outbox_worker",
			"layer", "adapter",
			"operation", "publish_event",
			"outcome", "failure",
			"outbox_id", rec.OutboxID,
			"event_type", rec.EventType,
			"retry_count", attempts,
			"error", err,
		}
		if attempts >= w.maxRetries {
			batch.DeadLettered++
			w.logger.ErrorContext(ctx, "outbox message dead-lettered", fields...)
			_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
			continue
		}
		w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled", fields...)
		_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
	}
	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.outbox_worker",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", batch.Claimed,
			"published_count", batch.Published,
			"failed_count", batch.Failed,
			"dead_lettered_count", batch.DeadLettered,
		)
	}
	return batch, nil
}
