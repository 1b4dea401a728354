package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput converts validator failures into domain.ErrInvalidInput.
func (s *Service) validateInput(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", domain.ErrInvalidInput, field)
	}
	return id, nil
}

func requireBrand(actor Actor) error {
	if actor.BrandID == uuid.Nil {
		return domain.ErrUnauthorized
	}
	return nil
}

func hashRequest(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// replayIdempotent reserves key for request. When a completed response is
// already stored for the same request it is decoded into out and true is
// returned. Keys are namespaced per brand.
func (s *Service) replayIdempotent(ctx context.Context, actor Actor, request any, out any) (bool, error) {
	if s.idempotency == nil || strings.TrimSpace(actor.IdempotencyKey) == "" {
		return false, nil
	}
	key := idempotencyKey(actor)
	requestHash := hashRequest(request)
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil {
		return false, err
	}
	if rec != nil {
		if rec.RequestHash != requestHash || rec.Status != ports.IdempotencyCompleted {
			return false, domain.ErrIdempotencyConflict
		}
		if err := json.Unmarshal(rec.ResponseBody, out); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL)); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
	}
	return false, nil
}

func (s *Service) completeIdempotent(ctx context.Context, actor Actor, responseCode int, payload any) {
	if s.idempotency == nil || strings.TrimSpace(actor.IdempotencyKey) == "" {
		return
	}
	raw, _ := json.Marshal(payload)
	if err := s.idempotency.Complete(ctx, idempotencyKey(actor), responseCode, raw, s.nowFn()); err != nil {
		s.logFailure(ctx, "complete_idempotency", err)
	}
}

func (s *Service) releaseIdempotent(ctx context.Context, actor Actor) {
	if s.idempotency == nil || strings.TrimSpace(actor.IdempotencyKey) == "" {
		return
	}
	if err := s.idempotency.Release(ctx, idempotencyKey(actor)); err != nil {
		s.logFailure(ctx, "release_idempotency", err)
	}
}

func idempotencyKey(actor Actor) string {
	return actor.BrandID.String() + ":" + strings.TrimSpace(actor.IdempotencyKey)
}

// enqueueEvent writes an integration event to the outbox. Failures are
// logged; the state change they describe has already been committed.
func (s *Service) enqueueEvent(ctx context.Context, eventType, partitionKey string, data any) {
	if s.outbox == nil {
		return
	}
	occurredAt := s.nowFn()
	eventID := uuid.New()
	envelope := map[string]any{
		"event_id":       eventID.String(),
		"event_type":     eventType,
		"occurred_at":    occurredAt.Format(time.RFC3339),
		"source_service": s.cfg.ServiceName,
		"schema_version": "1.0",
		"partition_key":  partitionKey,
		"data":           data,
	}
	payload, _ := json.Marshal(envelope)
	err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      eventID,
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		OccurredAt:   occurredAt,
	})
	if err != nil {
		s.logFailure(ctx, "enqueue_event", err, "event_type", eventType)
	}
}

func (s *Service) logFailure(ctx context.Context, operation string, err error, fields ...any) {
	args := append([]any{"operation", operation, "outcome", "failure", "error", err.Error()}, fields...)
	s.logger.WarnContext(ctx, "operation side effect failed", args...)
}

func (s *Service) logSuccess(ctx context.Context, operation string, fields ...any) {
	args := append([]any{"operation", operation, "outcome", "success"}, fields...)
	s.logger.InfoContext(ctx, "operation completed", args...)
}
