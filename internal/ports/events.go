package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// Event types written to the license outbox.
const (
	EventLicenseKeyCreated     = "license_key.created"
	EventLicenseCreated        = "license.created"
	EventLicenseRenewed        = "license.renewed"
	EventLicenseSuspended      = "license.suspended"
	EventLicenseResumed        = "license.resumed"
	EventLicenseCancelled      = "license.cancelled"
	EventLicenseSeatsReleased  = "license.seats_released"
	EventActivationActivated   = "activation.activated"
	EventActivationDeactivated = "activation.deactivated"
	EventActivationExpired     = "activation.expired"
)

const (
	StreamLicense    = "license"
	StreamLicenseKey = "license_key"
)

// eventStreams routes each event type onto a stream. Everything on the
// license stream is partitioned by license id, so lifecycle and seat events
// of one license are consumed in the order they happened.
var eventStreams = map[string]string{
	EventLicenseKeyCreated:     StreamLicenseKey,
	EventLicenseCreated:        StreamLicense,
	EventLicenseRenewed:        StreamLicense,
	EventLicenseSuspended:      StreamLicense,
	EventLicenseResumed:        StreamLicense,
	EventLicenseCancelled:      StreamLicense,
	EventLicenseSeatsReleased:  StreamLicense,
	EventActivationActivated:   StreamLicense,
	EventActivationDeactivated: StreamLicense,
	EventActivationExpired:     StreamLicense,
}

// EventStream reports the stream an event type belongs to.
func EventStream(eventType string) (string, bool) {
	stream, ok := eventStreams[eventType]
	return stream, ok
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// Validate rejects events the publisher could not route: unknown types,
// partition keys that are not entity ids and non-JSON payloads.
func (e OutboxEvent) Validate() error {
	if _, ok := EventStream(e.EventType); !ok {
		return fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidInput, e.EventType)
	}
	if _, err := uuid.Parse(e.PartitionKey); err != nil {
		return fmt.Errorf("%w: partition key %q is not an entity id", domain.ErrInvalidInput, e.PartitionKey)
	}
	if !json.Valid(e.Payload) {
		return fmt.Errorf("%w: %s payload is not JSON", domain.ErrInvalidInput, e.EventType)
	}
	return nil
}

type OutboxRecord struct {
	OutboxID     uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	LastError    *string
	CreatedAt    time.Time
	ClaimToken   *string
	ClaimUntil   *time.Time
}

// OutboxRepository claims rows with a token so several workers can drain the
// same table. Mark* calls are ignored unless the token still owns the row.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
