package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// seatTarget is a license resolved from a seat request, with the key and
// product it was addressed through.
type seatTarget struct {
	key     domain.LicenseKey
	product domain.Product
	license domain.License
}

func (s *Service) resolveSeatTarget(ctx context.Context, actor Actor, req SeatRequest) (seatTarget, error) {
	key, err := s.keys.GetByKey(ctx, actor.BrandID, strings.TrimSpace(req.LicenseKey))
	if err != nil {
		return seatTarget{}, err
	}
	product, err := s.products.GetBySlug(ctx, actor.BrandID, domain.NormalizeSlug(req.ProductSlug))
	if err != nil {
		return seatTarget{}, err
	}
	license, err := s.licenses.GetByKeyAndProduct(ctx, actor.BrandID, key.ID, product.ID)
	if err != nil {
		return seatTarget{}, err
	}
	return seatTarget{key: key, product: product, license: license}, nil
}

func (t seatTarget) usable() error {
	switch {
	case !t.key.Active:
		return fmt.Errorf("%w: license key is inactive", domain.ErrLicenseNotUsable)
	case !t.product.Active:
		return fmt.Errorf("%w: product is inactive", domain.ErrLicenseNotUsable)
	}
	return nil
}

func (s *Service) seatSpan(ctx context.Context, name string, actor Actor, identity domain.InstanceIdentity) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("brand.id", actor.BrandID.String()),
		attribute.String("instance.identity", identity.Label()),
	))
}

// Activate claims a seat for the instance identity. The capacity check and
// the write happen under the license lock, so concurrent activations can
// never push the active count past the cap.
func (s *Service) Activate(ctx context.Context, actor Actor, input SeatRequest) (ActivationResult, error) {
	if err := requireBrand(actor); err != nil {
		return ActivationResult{}, err
	}
	if err := s.validateInput(input); err != nil {
		return ActivationResult{}, err
	}
	identity := input.identity()
	if err := identity.Validate(); err != nil {
		return ActivationResult{}, err
	}
	ctx, span := s.seatSpan(ctx, "seats.activate", actor, identity)
	defer span.End()

	target, err := s.resolveSeatTarget(ctx, actor, input)
	if err != nil {
		return ActivationResult{}, err
	}
	if err := target.usable(); err != nil {
		s.metrics.SeatRejected(ctx, "license_not_usable")
		return ActivationResult{}, err
	}
	if err := s.checkActivationRate(ctx, actor, target.key); err != nil {
		s.metrics.SeatRejected(ctx, "rate_limited")
		return ActivationResult{}, err
	}

	var result ActivationResult
	err = s.seats.WithLicenseLock(ctx, actor.BrandID, target.license.ID, func(ctx context.Context, tx ports.SeatLedgerTx) error {
		now := s.nowFn()
		license := tx.License()
		if !license.IsValid(now) {
			return notUsable(license, now)
		}
		matches, err := tx.FindByIdentity(ctx, identity)
		if err != nil {
			return err
		}
		existing, found := domain.PickActivation(matches, identity)
		if found && existing.IsActive() {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyActivated, identity.Label())
		}
		used, err := tx.CountActive(ctx)
		if err != nil {
			return err
		}
		if !license.HasCapacity(used) {
			return fmt.Errorf("%w: %d of %d seats in use", domain.ErrNoAvailableSeats, used, *license.MaxSeats)
		}

		activation := existing
		if found {
			activation.Reactivate(identity, now)
			err = tx.Save(ctx, activation)
		} else {
			activation = domain.NewActivation(license.ID, identity, now)
			err = tx.Insert(ctx, activation)
		}
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, seatAudit(actor, license.ID, "activate", activation.InstanceIdentity, used, used+1, "", now)); err != nil {
			return err
		}
		active, err := tx.ListActive(ctx)
		if err != nil {
			return err
		}
		result = ActivationResult{
			Activation:  activation,
			Reactivated: found,
			LicenseID:   license.ID,
			ExpiresAt:   license.ExpiresAt,
			Seats:       domain.ComputeSeatUsage(license, active),
		}
		return nil
	})
	if err != nil {
		s.recordSeatRejection(ctx, err)
		span.SetStatus(codes.Error, err.Error())
		return ActivationResult{}, err
	}

	s.metrics.SeatActivated(ctx, result.Reactivated)
	s.enqueueEvent(ctx, ports.EventActivationActivated, result.LicenseID.String(), activationEventData(actor, result.Activation, result.Seats))
	s.logSuccess(ctx, "activate",
		"brand_id", actor.BrandID.String(),
		"license_id", result.LicenseID.String(),
		"activation_id", result.Activation.ID.String(),
		"reactivated", result.Reactivated,
		"used_seats", result.Seats.UsedSeats,
	)
	return result, nil
}

// Deactivate releases the seat held by the instance identity. It is allowed
// on licenses that are no longer usable so seats can always be freed.
func (s *Service) Deactivate(ctx context.Context, actor Actor, input DeactivateInput) (DeactivationResult, error) {
	if err := requireBrand(actor); err != nil {
		return DeactivationResult{}, err
	}
	if err := s.validateInput(input); err != nil {
		return DeactivationResult{}, err
	}
	identity := input.identity()
	if err := identity.Validate(); err != nil {
		return DeactivationResult{}, err
	}
	ctx, span := s.seatSpan(ctx, "seats.deactivate", actor, identity)
	defer span.End()

	target, err := s.resolveSeatTarget(ctx, actor, input.SeatRequest)
	if err != nil {
		return DeactivationResult{}, err
	}
	reason := strings.TrimSpace(input.Reason)

	var result DeactivationResult
	err = s.seats.WithLicenseLock(ctx, actor.BrandID, target.license.ID, func(ctx context.Context, tx ports.SeatLedgerTx) error {
		now := s.nowFn()
		matches, err := tx.FindByIdentity(ctx, identity)
		if err != nil {
			return err
		}
		activation, found := domain.PickActivation(matches, identity)
		if !found {
			return fmt.Errorf("%w: %s", domain.ErrActivationNotFound, identity.Label())
		}
		if !activation.IsActive() {
			return fmt.Errorf("%w: activation is %s", domain.ErrNotCurrentlyActive, activation.Status)
		}
		before, err := tx.CountActive(ctx)
		if err != nil {
			return err
		}
		activation.Release(domain.ActivationStatusDeactivated, reason, now)
		if err := tx.Save(ctx, activation); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, seatAudit(actor, activation.LicenseID, "deactivate", activation.InstanceIdentity, before, before-1, reason, now)); err != nil {
			return err
		}
		active, err := tx.ListActive(ctx)
		if err != nil {
			return err
		}
		result = DeactivationResult{Activation: activation, Seats: domain.ComputeSeatUsage(tx.License(), active)}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return DeactivationResult{}, err
	}

	s.metrics.SeatsReleased(ctx, "deactivated", 1)
	s.enqueueEvent(ctx, ports.EventActivationDeactivated, result.Activation.LicenseID.String(), activationEventData(actor, result.Activation, result.Seats))
	s.logSuccess(ctx, "deactivate",
		"brand_id", actor.BrandID.String(),
		"license_id", result.Activation.LicenseID.String(),
		"activation_id", result.Activation.ID.String(),
		"used_seats", result.Seats.UsedSeats,
	)
	return result, nil
}

// ForceDeactivateAll releases every active seat of the license. Zero active
// seats is not an error.
func (s *Service) ForceDeactivateAll(ctx context.Context, actor Actor, licenseID string, input ForceDeactivateInput) (ForceDeactivateResult, error) {
	if err := requireBrand(actor); err != nil {
		return ForceDeactivateResult{}, err
	}
	if err := s.validateInput(input); err != nil {
		return ForceDeactivateResult{}, err
	}
	id, err := parseID("license_id", licenseID)
	if err != nil {
		return ForceDeactivateResult{}, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = domain.DefaultForceDeactivationReason
	}
	ctx, span := s.tracer.Start(ctx, "seats.force_deactivate_all", trace.WithAttributes(
		attribute.String("brand.id", actor.BrandID.String()),
		attribute.String("license.id", id.String()),
	))
	defer span.End()

	result := ForceDeactivateResult{LicenseID: id, Reason: reason}
	err = s.seats.WithLicenseLock(ctx, actor.BrandID, id, func(ctx context.Context, tx ports.SeatLedgerTx) error {
		now := s.nowFn()
		active, err := tx.ListActive(ctx)
		if err != nil {
			return err
		}
		used := len(active)
		for _, activation := range active {
			activation.Release(domain.ActivationStatusDeactivated, reason, now)
			if err := tx.Save(ctx, activation); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, seatAudit(actor, id, "force_deactivate", activation.InstanceIdentity, used, used-1, reason, now)); err != nil {
				return err
			}
			used--
		}
		result.Deactivated = len(active)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ForceDeactivateResult{}, err
	}
	if result.Deactivated == 0 {
		return result, nil
	}
	s.metrics.SeatsReleased(ctx, "force_deactivated", result.Deactivated)
	s.enqueueEvent(ctx, ports.EventLicenseSeatsReleased, id.String(), map[string]any{
		"brand_id":    actor.BrandID.String(),
		"license_id":  id.String(),
		"deactivated": result.Deactivated,
		"reason":      reason,
	})
	s.logSuccess(ctx, "force_deactivate_all",
		"brand_id", actor.BrandID.String(),
		"license_id", id.String(),
		"deactivated", result.Deactivated,
	)
	return result, nil
}

func (s *Service) SeatUsage(ctx context.Context, actor Actor, licenseID string) (domain.SeatUsage, error) {
	if err := requireBrand(actor); err != nil {
		return domain.SeatUsage{}, err
	}
	id, err := parseID("license_id", licenseID)
	if err != nil {
		return domain.SeatUsage{}, err
	}
	license, err := s.licenses.Get(ctx, actor.BrandID, id)
	if err != nil {
		return domain.SeatUsage{}, err
	}
	active, err := s.seats.ListActive(ctx, license.ID)
	if err != nil {
		return domain.SeatUsage{}, err
	}
	return domain.ComputeSeatUsage(license, active), nil
}

// ListActivations returns the full seat history of a license.
func (s *Service) ListActivations(ctx context.Context, actor Actor, licenseID string) ([]domain.Activation, error) {
	if err := requireBrand(actor); err != nil {
		return nil, err
	}
	id, err := parseID("license_id", licenseID)
	if err != nil {
		return nil, err
	}
	license, err := s.licenses.Get(ctx, actor.BrandID, id)
	if err != nil {
		return nil, err
	}
	return s.seats.ListByLicense(ctx, license.ID)
}

// VerifyActivation answers whether the instance currently holds a seat on a
// usable license, and records the check as activity on that seat.
func (s *Service) VerifyActivation(ctx context.Context, actor Actor, input SeatRequest) (VerifyResult, error) {
	if err := requireBrand(actor); err != nil {
		return VerifyResult{}, err
	}
	if err := s.validateInput(input); err != nil {
		return VerifyResult{}, err
	}
	identity := input.identity()
	if err := identity.Validate(); err != nil {
		return VerifyResult{}, err
	}
	target, err := s.resolveSeatTarget(ctx, actor, input)
	if err != nil {
		return VerifyResult{}, err
	}
	now := s.nowFn()
	license := target.license
	result := VerifyResult{
		LicenseID:     license.ID,
		LicenseStatus: license.Status,
		IsValid:       license.IsValid(now) && target.usable() == nil,
		ExpiresAt:     license.ExpiresAt,
	}
	rows, err := s.seats.ListByLicense(ctx, license.ID)
	if err != nil {
		return VerifyResult{}, err
	}
	activation, found := domain.PickActivation(rows, identity)
	if !found {
		return result, nil
	}
	if activation.IsActive() {
		if err := s.seats.Touch(ctx, activation.ID, now); err != nil && !errors.Is(err, domain.ErrActivationNotFound) {
			return VerifyResult{}, err
		}
		activation.LastSeenAt = now
	}
	result.Activation = &activation
	result.Entitled = result.IsValid && activation.IsActive()
	return result, nil
}

// ExpireLapsedActivations releases seats held on licenses whose expiration
// passed more than the grace period ago. It returns the number released.
func (s *Service) ExpireLapsedActivations(ctx context.Context) (int, error) {
	now := s.nowFn()
	released, err := s.seats.ExpireLapsed(ctx, now.Add(-s.cfg.ActivationGracePeriod), now, s.cfg.ExpirySweepBatch)
	if err != nil {
		return 0, err
	}
	for _, activation := range released {
		s.enqueueEvent(ctx, ports.EventActivationExpired, activation.LicenseID.String(), map[string]any{
			"license_id":    activation.LicenseID.String(),
			"activation_id": activation.ID.String(),
			"instance":      activation.InstanceIdentity,
		})
	}
	if len(released) > 0 {
		s.metrics.SeatsReleased(ctx, "license_expired", len(released))
		s.logSuccess(ctx, "expire_lapsed_activations", "released", len(released))
	}
	return len(released), nil
}

// checkActivationRate charges one attempt against the license key's
// activation window. Limiter failures let the attempt through.
func (s *Service) checkActivationRate(ctx context.Context, actor Actor, key domain.LicenseKey) error {
	if s.throttle == nil {
		return nil
	}
	allowed, err := s.throttle.Allow(ctx, "activation:"+actor.BrandID.String()+":"+key.ID.String())
	if err != nil {
		s.logger.WarnContext(ctx, "activation limiter unavailable",
			"operation", "activate",
			"outcome", "degraded",
			"license_key_id", key.ID.String(),
			"error", err.Error(),
		)
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: too many activations for license key %s", domain.ErrRateLimited, key.ID)
	}
	return nil
}

func notUsable(license domain.License, now time.Time) error {
	if license.Status == domain.LicenseStatusValid && license.Expired(now) {
		return fmt.Errorf("%w: license expired at %s", domain.ErrLicenseNotUsable, license.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Errorf("%w: license is %s", domain.ErrLicenseNotUsable, license.Status)
}

func (s *Service) recordSeatRejection(ctx context.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoAvailableSeats):
		s.metrics.SeatRejected(ctx, "no_available_seats")
	case errors.Is(err, domain.ErrAlreadyActivated):
		s.metrics.SeatRejected(ctx, "already_activated")
	case errors.Is(err, domain.ErrLicenseNotUsable):
		s.metrics.SeatRejected(ctx, "license_not_usable")
	}
}

func seatAudit(actor Actor, licenseID uuid.UUID, action string, identity domain.InstanceIdentity, before, after int, reason string, now time.Time) domain.AuditRecord {
	return domain.AuditRecord{
		ID:          uuid.New(),
		BrandID:     actor.BrandID,
		LicenseID:   licenseID,
		Action:      action,
		Identity:    identity,
		SeatsBefore: before,
		SeatsAfter:  after,
		Reason:      reason,
		OccurredAt:  now,
	}
}

func activationEventData(actor Actor, activation domain.Activation, usage domain.SeatUsage) map[string]any {
	return map[string]any{
		"brand_id":      actor.BrandID.String(),
		"license_id":    activation.LicenseID.String(),
		"activation_id": activation.ID.String(),
		"status":        string(activation.Status),
		"instance":      activation.InstanceIdentity,
		"used_seats":    usage.UsedSeats,
	}
}
