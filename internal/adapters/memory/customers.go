package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type CustomerReadRepository struct {
	store *Store
}

func (r *CustomerReadRepository) AcrossBrands(_ context.Context, email string) ([]domain.CustomerKeyRecord, error) {
	return r.collect(func(key domain.LicenseKey, brand domain.Brand) bool {
		return brand.Active && key.CustomerEmail == email
	}), nil
}

func (r *CustomerReadRepository) InBrand(_ context.Context, brandID uuid.UUID, email string) ([]domain.CustomerKeyRecord, error) {
	return r.collect(func(key domain.LicenseKey, _ domain.Brand) bool {
		return key.BrandID == brandID && key.CustomerEmail == email
	}), nil
}

func (r *CustomerReadRepository) collect(keep func(domain.LicenseKey, domain.Brand) bool) []domain.CustomerKeyRecord {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.CustomerKeyRecord, 0)
	for _, key := range r.store.keys {
		brand, ok := r.store.brands[key.BrandID]
		if !ok || !keep(key, brand) {
			continue
		}
		out = append(out, domain.CustomerKeyRecord{
			Brand:        brand,
			Key:          key,
			Entitlements: r.store.entitlementsLocked(key.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.CreatedAt.Before(out[j].Key.CreatedAt) })
	return out
}
