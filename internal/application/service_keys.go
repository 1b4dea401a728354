package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const licenseKeyAttempts = 3

func (s *Service) CreateLicenseKey(ctx context.Context, actor Actor, input CreateLicenseKeyInput) (domain.LicenseKey, error) {
	if err := requireBrand(actor); err != nil {
		return domain.LicenseKey{}, err
	}
	input.CustomerEmail = domain.NormalizeEmail(input.CustomerEmail)
	if err := s.validateInput(input); err != nil {
		return domain.LicenseKey{}, err
	}
	var out domain.LicenseKey
	if replayed, err := s.replayIdempotent(ctx, actor, input, &out); err != nil || replayed {
		return out, err
	}

	now := s.nowFn()
	key := domain.LicenseKey{
		ID:            uuid.New(),
		BrandID:       actor.BrandID,
		CustomerEmail: input.CustomerEmail,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var err error
	for attempt := 0; attempt < licenseKeyAttempts; attempt++ {
		key.Key, err = s.tokens.LicenseKey()
		if err != nil {
			break
		}
		err = s.keys.Create(ctx, key)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
	}
	if err != nil {
		s.releaseIdempotent(ctx, actor)
		return domain.LicenseKey{}, fmt.Errorf("create license key: %w", err)
	}
	s.completeIdempotent(ctx, actor, http.StatusCreated, key)
	s.enqueueEvent(ctx, ports.EventLicenseKeyCreated, key.ID.String(), map[string]any{
		"license_key_id": key.ID.String(),
		"brand_id":       key.BrandID.String(),
		"customer_email": key.CustomerEmail,
	})
	s.logSuccess(ctx, "create_license_key", "brand_id", actor.BrandID.String(), "license_key_id", key.ID.String())
	return key, nil
}

func (s *Service) GetLicenseKey(ctx context.Context, actor Actor, licenseKeyID string) (domain.LicenseKey, error) {
	if err := requireBrand(actor); err != nil {
		return domain.LicenseKey{}, err
	}
	id, err := parseID("license_key_id", licenseKeyID)
	if err != nil {
		return domain.LicenseKey{}, err
	}
	return s.keys.Get(ctx, actor.BrandID, id)
}

func (s *Service) UpdateLicenseKey(ctx context.Context, actor Actor, licenseKeyID string, input UpdateLicenseKeyInput) (domain.LicenseKey, error) {
	key, err := s.GetLicenseKey(ctx, actor, licenseKeyID)
	if err != nil {
		return domain.LicenseKey{}, err
	}
	if err := s.validateInput(input); err != nil {
		return domain.LicenseKey{}, err
	}
	if key.Active == *input.Active {
		return key, nil
	}
	key.Active = *input.Active
	key.UpdatedAt = s.nowFn()
	if err := s.keys.Update(ctx, key); err != nil {
		return domain.LicenseKey{}, err
	}
	return key, nil
}

// LicenseKeyStatus aggregates entitlement and seat detail over every license
// of the key.
func (s *Service) LicenseKeyStatus(ctx context.Context, actor Actor, licenseKeyID string) (domain.LicenseKeyStatus, error) {
	key, err := s.GetLicenseKey(ctx, actor, licenseKeyID)
	if err != nil {
		return domain.LicenseKeyStatus{}, err
	}
	entitlements, err := s.licenses.ListEntitlements(ctx, actor.BrandID, key.ID)
	if err != nil {
		return domain.LicenseKeyStatus{}, err
	}
	return domain.SummarizeLicenseKey(key, entitlements, s.nowFn()), nil
}

// ListLicenses returns every license issued under the key, oldest first.
func (s *Service) ListLicenses(ctx context.Context, actor Actor, licenseKeyID string) ([]LicenseView, error) {
	key, err := s.GetLicenseKey(ctx, actor, licenseKeyID)
	if err != nil {
		return nil, err
	}
	entitlements, err := s.licenses.ListEntitlements(ctx, actor.BrandID, key.ID)
	if err != nil {
		return nil, err
	}
	out := make([]LicenseView, 0, len(entitlements))
	for _, e := range entitlements {
		out = append(out, s.licenseView(e.License))
	}
	return out, nil
}
