package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type LicenseRepository struct {
	store *Store
}

func (r *LicenseRepository) Create(_ context.Context, license domain.License) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.keys[license.LicenseKeyID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := r.store.products[license.ProductID]; !ok {
		return domain.ErrNotFound
	}
	for _, existing := range r.store.licenses {
		if existing.LicenseKeyID == license.LicenseKeyID && existing.ProductID == license.ProductID &&
			existing.Status != domain.LicenseStatusCancelled {
			return domain.ErrConflict
		}
	}
	r.store.licenses[license.ID] = license
	return nil
}

func (r *LicenseRepository) Get(_ context.Context, brandID, licenseID uuid.UUID) (domain.License, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.licenseOwnedLocked(brandID, licenseID)
}

func (r *LicenseRepository) GetByKeyAndProduct(_ context.Context, brandID, licenseKeyID, productID uuid.UUID) (domain.License, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	key, ok := r.store.keys[licenseKeyID]
	if !ok || key.BrandID != brandID {
		return domain.License{}, domain.ErrNotFound
	}
	var (
		found domain.License
		have  bool
	)
	for _, license := range r.store.licenses {
		if license.LicenseKeyID != licenseKeyID || license.ProductID != productID {
			continue
		}
		if !have || preferLicense(license, found) {
			found, have = license, true
		}
	}
	if !have {
		return domain.License{}, domain.ErrNotFound
	}
	return found, nil
}

// preferLicense reports whether a should be resolved ahead of b: the open
// license first, then the newest cancelled one.
func preferLicense(a, b domain.License) bool {
	aOpen, bOpen := a.Status != domain.LicenseStatusCancelled, b.Status != domain.LicenseStatusCancelled
	if aOpen != bOpen {
		return aOpen
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *LicenseRepository) ListEntitlements(_ context.Context, brandID, licenseKeyID uuid.UUID) ([]domain.Entitlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	key, ok := r.store.keys[licenseKeyID]
	if !ok || key.BrandID != brandID {
		return nil, domain.ErrNotFound
	}
	return r.store.entitlementsLocked(licenseKeyID), nil
}

func (s *Store) entitlementsLocked(licenseKeyID uuid.UUID) []domain.Entitlement {
	out := make([]domain.Entitlement, 0)
	for _, license := range s.licenses {
		if license.LicenseKeyID != licenseKeyID {
			continue
		}
		out = append(out, domain.Entitlement{
			License:     license,
			Product:     s.products[license.ProductID],
			ActiveSeats: s.activeCountLocked(license.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].License.CreatedAt.Before(out[j].License.CreatedAt) })
	return out
}

func (r *LicenseRepository) Transition(_ context.Context, brandID, licenseID uuid.UUID, fn func(*domain.License) error) (domain.License, error) {
	lock := r.store.licenseLock(licenseID)
	lock.Lock()
	defer lock.Unlock()

	r.store.mu.RLock()
	license, err := r.store.licenseOwnedLocked(brandID, licenseID)
	r.store.mu.RUnlock()
	if err != nil {
		return domain.License{}, err
	}
	if err := fn(&license); err != nil {
		return domain.License{}, err
	}
	r.store.mu.Lock()
	r.store.licenses[license.ID] = license
	r.store.mu.Unlock()
	return license, nil
}
