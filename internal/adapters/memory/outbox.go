package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type OutboxRepository struct {
	store *Store
}

func (r *OutboxRepository) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.outbox = append(r.store.outbox, outboxRow{record: ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      event.Payload,
		CreatedAt:    event.OccurredAt,
	}})
	return nil
}

func (r *OutboxRepository) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, errors.New("claim token is required")
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now().UTC()
	out := make([]ports.OutboxRecord, 0)
	for i := range r.store.outbox {
		row := &r.store.outbox[i]
		if row.publishedAt != nil || row.deadLettered {
			continue
		}
		if row.record.ClaimUntil != nil && row.record.ClaimUntil.After(now) {
			continue
		}
		token, until := claimToken, claimUntil
		row.record.ClaimToken = &token
		row.record.ClaimUntil = &until
		out = append(out, row.record)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if row := r.claimedLocked(outboxID, claimToken); row != nil {
		row.publishedAt = &at
		row.release()
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, _ time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if row := r.claimedLocked(outboxID, claimToken); row != nil {
		row.record.RetryCount++
		row.record.LastError = &errMsg
		row.release()
	}
	return nil
}

func (r *OutboxRepository) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, _ time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if row := r.claimedLocked(outboxID, claimToken); row != nil {
		row.record.RetryCount++
		row.record.LastError = &errMsg
		row.deadLettered = true
		row.release()
	}
	return nil
}

func (r *OutboxRepository) claimedLocked(outboxID uuid.UUID, claimToken string) *outboxRow {
	for i := range r.store.outbox {
		row := &r.store.outbox[i]
		if row.record.OutboxID == outboxID && row.record.ClaimToken != nil && *row.record.ClaimToken == claimToken {
			return row
		}
	}
	return nil
}

func (row *outboxRow) release() {
	row.record.ClaimToken = nil
	row.record.ClaimUntil = nil
}

// Pending lists event types not yet published, oldest first.
func (r *OutboxRepository) Pending() []string {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]string, 0)
	for _, row := range r.store.outbox {
		if row.publishedAt == nil && !row.deadLettered {
			out = append(out, row.record.EventType)
		}
	}
	return out
}

type IdempotencyRepository struct {
	store *Store
}

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key = strings.TrimSpace(key)
	rec, ok := r.store.idempotency[key]
	if !ok {
		return nil, nil
	}
	if now.After(rec.ExpiresAt) {
		delete(r.store.idempotency, key)
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.idempotency[key]; ok {
		return errors.New("already reserved")
	}
	r.store.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      ports.IdempotencyReserved,
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.idempotency[key]
	if !ok {
		return nil
	}
	rec.Status = ports.IdempotencyCompleted
	rec.ResponseCode = responseCode
	rec.ResponseBody = responseBody
	r.store.idempotency[key] = rec
	return nil
}

func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if rec, ok := r.store.idempotency[key]; ok && rec.Status == ports.IdempotencyReserved {
		delete(r.store.idempotency, key)
	}
	return nil
}
