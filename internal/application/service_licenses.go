package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CreateLicense binds a key to a product. Both must belong to the acting
// brand; a foreign key or product is reported as not found. Without an
// explicit cap the product's default is copied onto the license. A key holds
// at most one non-cancelled license per product.
func (s *Service) CreateLicense(ctx context.Context, actor Actor, input CreateLicenseInput) (LicenseView, error) {
	if err := requireBrand(actor); err != nil {
		return LicenseView{}, err
	}
	if err := s.validateInput(input); err != nil {
		return LicenseView{}, err
	}
	keyID, err := parseID("license_key_id", input.LicenseKeyID)
	if err != nil {
		return LicenseView{}, err
	}
	productID, err := parseID("product_id", input.ProductID)
	if err != nil {
		return LicenseView{}, err
	}
	now := s.nowFn()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return LicenseView{}, fmt.Errorf("%w: expires_at must be in the future", domain.ErrInvalidInput)
	}

	var out LicenseView
	if replayed, err := s.replayIdempotent(ctx, actor, input, &out); err != nil || replayed {
		return out, err
	}
	license, err := s.createLicense(ctx, actor, keyID, productID, input)
	if err != nil {
		s.releaseIdempotent(ctx, actor)
		return LicenseView{}, err
	}
	out = s.licenseView(license)
	s.completeIdempotent(ctx, actor, http.StatusCreated, out)
	s.enqueueEvent(ctx, ports.EventLicenseCreated, license.ID.String(), licenseEventData(actor, license))
	s.logSuccess(ctx, "create_license", "brand_id", actor.BrandID.String(), "license_id", license.ID.String())
	return out, nil
}

func (s *Service) createLicense(ctx context.Context, actor Actor, keyID, productID uuid.UUID, input CreateLicenseInput) (domain.License, error) {
	key, err := s.keys.Get(ctx, actor.BrandID, keyID)
	if err != nil {
		return domain.License{}, err
	}
	product, err := s.products.Get(ctx, actor.BrandID, productID)
	if err != nil {
		return domain.License{}, err
	}
	switch open, err := s.licenses.GetByKeyAndProduct(ctx, actor.BrandID, key.ID, product.ID); {
	case err == nil && open.Status != domain.LicenseStatusCancelled:
		return domain.License{}, fmt.Errorf("%w: license %s already binds the key to %s", domain.ErrConflict, open.ID, product.Slug)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.License{}, err
	}
	maxSeats := copyInt(input.MaxSeats)
	if maxSeats == nil {
		maxSeats = copyInt(product.MaxSeats)
	}
	now := s.nowFn()
	license := domain.License{
		ID:           uuid.New(),
		LicenseKeyID: key.ID,
		ProductID:    product.ID,
		Status:       domain.LicenseStatusValid,
		MaxSeats:     maxSeats,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.ExpiresAt != nil {
		expiresAt := input.ExpiresAt.UTC()
		license.ExpiresAt = &expiresAt
	}
	if err := s.licenses.Create(ctx, license); err != nil {
		return domain.License{}, err
	}
	return license, nil
}

func (s *Service) GetLicense(ctx context.Context, actor Actor, licenseID string) (LicenseView, error) {
	if err := requireBrand(actor); err != nil {
		return LicenseView{}, err
	}
	id, err := parseID("license_id", licenseID)
	if err != nil {
		return LicenseView{}, err
	}
	license, err := s.licenses.Get(ctx, actor.BrandID, id)
	if err != nil {
		return LicenseView{}, err
	}
	return s.licenseView(license), nil
}

func (s *Service) RenewLicense(ctx context.Context, actor Actor, licenseID string, input RenewLicenseInput) (LicenseView, error) {
	if err := s.validateInput(input); err != nil {
		return LicenseView{}, err
	}
	return s.transitionLicense(ctx, actor, licenseID, domain.LicenseOpRenew, domain.RenewalTerm{Days: input.Days, Until: input.ExpiresAt})
}

func (s *Service) SuspendLicense(ctx context.Context, actor Actor, licenseID string) (LicenseView, error) {
	return s.transitionLicense(ctx, actor, licenseID, domain.LicenseOpSuspend, domain.RenewalTerm{})
}

func (s *Service) ResumeLicense(ctx context.Context, actor Actor, licenseID string) (LicenseView, error) {
	return s.transitionLicense(ctx, actor, licenseID, domain.LicenseOpResume, domain.RenewalTerm{})
}

func (s *Service) CancelLicense(ctx context.Context, actor Actor, licenseID string) (LicenseView, error) {
	return s.transitionLicense(ctx, actor, licenseID, domain.LicenseOpCancel, domain.RenewalTerm{})
}

var transitionEvents = map[domain.LicenseOperation]string{
	domain.LicenseOpRenew:   ports.EventLicenseRenewed,
	domain.LicenseOpSuspend: ports.EventLicenseSuspended,
	domain.LicenseOpResume:  ports.EventLicenseResumed,
	domain.LicenseOpCancel:  ports.EventLicenseCancelled,
}

func (s *Service) transitionLicense(ctx context.Context, actor Actor, licenseID string, op domain.LicenseOperation, term domain.RenewalTerm) (LicenseView, error) {
	if err := requireBrand(actor); err != nil {
		return LicenseView{}, err
	}
	id, err := parseID("license_id", licenseID)
	if err != nil {
		return LicenseView{}, err
	}
	ctx, span := s.tracer.Start(ctx, "license."+string(op), trace.WithAttributes(
		attribute.String("brand.id", actor.BrandID.String()),
		attribute.String("license.id", id.String()),
	))
	defer span.End()

	var previous domain.LicenseStatus
	now := s.nowFn()
	license, err := s.licenses.Transition(ctx, actor.BrandID, id, func(l *domain.License) error {
		previous = l.Status
		return domain.ApplyLicenseOperation(l, op, term, now)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return LicenseView{}, err
	}
	s.metrics.LicenseTransitioned(ctx, string(op))
	data := licenseEventData(actor, license)
	data["previous_status"] = string(previous)
	s.enqueueEvent(ctx, transitionEvents[op], license.ID.String(), data)
	s.logSuccess(ctx, string(op)+"_license",
		"brand_id", actor.BrandID.String(),
		"license_id", license.ID.String(),
		"from_status", string(previous),
		"to_status", string(license.Status),
	)
	return s.licenseView(license), nil
}

func (s *Service) licenseView(license domain.License) LicenseView {
	now := s.nowFn()
	return LicenseView{
		License:           license,
		IsValid:           license.IsValid(now),
		IsExpired:         license.Expired(now),
		AllowedOperations: domain.AllowedOperations(license.Status),
	}
}

func licenseEventData(actor Actor, license domain.License) map[string]any {
	data := map[string]any{
		"brand_id":       actor.BrandID.String(),
		"license_id":     license.ID.String(),
		"license_key_id": license.LicenseKeyID.String(),
		"product_id":     license.ProductID.String(),
		"status":         string(license.Status),
	}
	if license.ExpiresAt != nil {
		data["expires_at"] = license.ExpiresAt.Format(time.RFC3339)
	}
	if license.MaxSeats != nil {
		data["max_seats"] = *license.MaxSeats
	}
	return data
}
