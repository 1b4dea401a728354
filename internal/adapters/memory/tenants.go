package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type BrandRepository struct {
	store *Store
}

func (r *BrandRepository) Create(_ context.Context, brand domain.Brand) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.brands {
		if existing.Slug == brand.Slug || (brand.APIKeyID != "" && existing.APIKeyID == brand.APIKeyID) {
			return domain.ErrConflict
		}
	}
	r.store.brands[brand.ID] = brand
	return nil
}

func (r *BrandRepository) GetByID(_ context.Context, brandID uuid.UUID) (domain.Brand, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	brand, ok := r.store.brands[brandID]
	if !ok {
		return domain.Brand{}, domain.ErrNotFound
	}
	return brand, nil
}

func (r *BrandRepository) GetBySlug(_ context.Context, slug string) (domain.Brand, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, brand := range r.store.brands {
		if brand.Slug == slug {
			return brand, nil
		}
	}
	return domain.Brand{}, domain.ErrNotFound
}

func (r *BrandRepository) GetByAPIKeyID(_ context.Context, keyID string) (domain.Brand, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, brand := range r.store.brands {
		if brand.APIKeyID == keyID {
			return brand, nil
		}
	}
	return domain.Brand{}, domain.ErrNotFound
}

func (r *BrandRepository) Update(_ context.Context, brand domain.Brand) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.brands[brand.ID]; !ok {
		return domain.ErrNotFound
	}
	r.store.brands[brand.ID] = brand
	return nil
}

func (r *BrandRepository) List(_ context.Context) ([]domain.Brand, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Brand, 0, len(r.store.brands))
	for _, brand := range r.store.brands {
		out = append(out, brand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

type ProductRepository struct {
	store *Store
}

func (r *ProductRepository) Create(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.products {
		if existing.BrandID == product.BrandID && existing.Slug == product.Slug {
			return domain.ErrConflict
		}
	}
	r.store.products[product.ID] = product
	return nil
}

func (r *ProductRepository) Get(_ context.Context, brandID, productID uuid.UUID) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	product, ok := r.store.products[productID]
	if !ok || product.BrandID != brandID {
		return domain.Product{}, domain.ErrNotFound
	}
	return product, nil
}

func (r *ProductRepository) GetBySlug(_ context.Context, brandID uuid.UUID, slug string) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, product := range r.store.products {
		if product.BrandID == brandID && product.Slug == slug {
			return product, nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}

func (r *ProductRepository) List(_ context.Context, brandID uuid.UUID) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Product, 0)
	for _, product := range r.store.products {
		if product.BrandID == brandID {
			out = append(out, product)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *ProductRepository) Update(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.products[product.ID]
	if !ok || existing.BrandID != product.BrandID {
		return domain.ErrNotFound
	}
	r.store.products[product.ID] = product
	return nil
}

type LicenseKeyRepository struct {
	store *Store
}

func (r *LicenseKeyRepository) Create(_ context.Context, key domain.LicenseKey) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.keys {
		if existing.Key == key.Key {
			return domain.ErrConflict
		}
	}
	r.store.keys[key.ID] = key
	return nil
}

func (r *LicenseKeyRepository) Get(_ context.Context, brandID, licenseKeyID uuid.UUID) (domain.LicenseKey, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	key, ok := r.store.keys[licenseKeyID]
	if !ok || key.BrandID != brandID {
		return domain.LicenseKey{}, domain.ErrNotFound
	}
	return key, nil
}

func (r *LicenseKeyRepository) GetByKey(_ context.Context, brandID uuid.UUID, token string) (domain.LicenseKey, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, key := range r.store.keys {
		if key.Key == token && key.BrandID == brandID {
			return key, nil
		}
	}
	return domain.LicenseKey{}, domain.ErrNotFound
}

func (r *LicenseKeyRepository) Update(_ context.Context, key domain.LicenseKey) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.keys[key.ID]
	if !ok || existing.BrandID != key.BrandID {
		return domain.ErrNotFound
	}
	r.store.keys[key.ID] = key
	return nil
}
