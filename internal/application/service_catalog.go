package application

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

func (s *Service) CreateProduct(ctx context.Context, actor Actor, input CreateProductInput) (domain.Product, error) {
	if err := requireBrand(actor); err != nil {
		return domain.Product{}, err
	}
	if err := s.validateInput(input); err != nil {
		return domain.Product{}, err
	}
	slug := domain.NormalizeSlug(input.Slug)
	if err := domain.ValidateSlug(slug); err != nil {
		return domain.Product{}, err
	}
	now := s.nowFn()
	product := domain.Product{
		ID:        uuid.New(),
		BrandID:   actor.BrandID,
		Name:      strings.TrimSpace(input.Name),
		Slug:      slug,
		MaxSeats:  copyInt(input.MaxSeats),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.logSuccess(ctx, "create_product", "brand_id", actor.BrandID.String(), "product_id", product.ID.String())
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, actor Actor) ([]domain.Product, error) {
	if err := requireBrand(actor); err != nil {
		return nil, err
	}
	return s.products.List(ctx, actor.BrandID)
}

func (s *Service) GetProduct(ctx context.Context, actor Actor, productID string) (domain.Product, error) {
	if err := requireBrand(actor); err != nil {
		return domain.Product{}, err
	}
	id, err := parseID("product_id", productID)
	if err != nil {
		return domain.Product{}, err
	}
	return s.products.Get(ctx, actor.BrandID, id)
}

// UpdateProduct renames, re-caps or toggles a product. A changed seat cap is
// a default for future licenses only.
func (s *Service) UpdateProduct(ctx context.Context, actor Actor, productID string, input UpdateProductInput) (domain.Product, error) {
	product, err := s.GetProduct(ctx, actor, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.validateInput(input); err != nil {
		return domain.Product{}, err
	}
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	switch {
	case input.ClearMaxSeats:
		product.MaxSeats = nil
	case input.MaxSeats != nil:
		product.MaxSeats = copyInt(input.MaxSeats)
	}
	if input.Active != nil {
		product.Active = *input.Active
	}
	product.UpdatedAt = s.nowFn()
	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
