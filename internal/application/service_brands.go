package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// CreateBrand registers a tenant and returns its API key. The plain key is
// only ever returned here and from RotateBrandCredential.
func (s *Service) CreateBrand(ctx context.Context, input CreateBrandInput) (BrandCredentials, error) {
	if err := s.validateInput(input); err != nil {
		return BrandCredentials{}, err
	}
	slug := domain.NormalizeSlug(input.Slug)
	if err := domain.ValidateSlug(slug); err != nil {
		return BrandCredentials{}, err
	}
	cred, err := s.tokens.APICredential()
	if err != nil {
		return BrandCredentials{}, fmt.Errorf("generate api credential: %w", err)
	}
	hash, err := s.hasher.Hash(cred.Secret)
	if err != nil {
		return BrandCredentials{}, fmt.Errorf("hash api credential: %w", err)
	}
	now := s.nowFn()
	brand := domain.Brand{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(input.Name),
		Slug:       slug,
		APIKeyID:   cred.KeyID,
		APIKeyHash: hash,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.brands.Create(ctx, brand); err != nil {
		return BrandCredentials{}, err
	}
	s.logSuccess(ctx, "create_brand", "brand_id", brand.ID.String(), "brand_slug", brand.Slug)
	return BrandCredentials{Brand: brand, APIKey: cred.String()}, nil
}

func (s *Service) RotateBrandCredential(ctx context.Context, slug string) (BrandCredentials, error) {
	brand, err := s.brands.GetBySlug(ctx, domain.NormalizeSlug(slug))
	if err != nil {
		return BrandCredentials{}, err
	}
	cred, err := s.tokens.APICredential()
	if err != nil {
		return BrandCredentials{}, fmt.Errorf("generate api credential: %w", err)
	}
	hash, err := s.hasher.Hash(cred.Secret)
	if err != nil {
		return BrandCredentials{}, fmt.Errorf("hash api credential: %w", err)
	}
	brand.APIKeyID = cred.KeyID
	brand.APIKeyHash = hash
	brand.UpdatedAt = s.nowFn()
	if err := s.brands.Update(ctx, brand); err != nil {
		return BrandCredentials{}, err
	}
	s.logSuccess(ctx, "rotate_brand_credential", "brand_id", brand.ID.String())
	return BrandCredentials{Brand: brand, APIKey: cred.String()}, nil
}

// SetBrandActive toggles the tenant gate. Data is kept either way.
func (s *Service) SetBrandActive(ctx context.Context, slug string, active bool) (domain.Brand, error) {
	brand, err := s.brands.GetBySlug(ctx, domain.NormalizeSlug(slug))
	if err != nil {
		return domain.Brand{}, err
	}
	if brand.Active == active {
		return brand, nil
	}
	brand.Active = active
	brand.UpdatedAt = s.nowFn()
	if err := s.brands.Update(ctx, brand); err != nil {
		return domain.Brand{}, err
	}
	s.logSuccess(ctx, "set_brand_active", "brand_id", brand.ID.String(), "active", active)
	return brand, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.brands.List(ctx)
}

func (s *Service) GetBrand(ctx context.Context, actor Actor) (domain.Brand, error) {
	if err := requireBrand(actor); err != nil {
		return domain.Brand{}, err
	}
	brand, err := s.brands.GetByID(ctx, actor.BrandID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Brand{}, domain.ErrUnauthorized
	}
	return brand, err
}
