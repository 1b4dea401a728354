package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

type customerReadRepository struct {
	db *gorm.DB
}

func (r *customerReadRepository) AcrossBrands(ctx context.Context, email string) ([]domain.CustomerKeyRecord, error) {
	db := r.db.WithContext(ctx)
	var keys []licenseKeyModel
	if err := db.Model(&licenseKeyModel{}).
		Select("license_keys.*").
		Joins("JOIN brands ON brands.brand_id = license_keys.brand_id").
		Where("license_keys.customer_email = ? AND brands.active = ?", email, true).
		Order("license_keys.created_at ASC").
		Find(&keys).Error; err != nil {
		return nil, err
	}
	return r.records(db, keys)
}

func (r *customerReadRepository) InBrand(ctx context.Context, brandID uuid.UUID, email string) ([]domain.CustomerKeyRecord, error) {
	db := r.db.WithContext(ctx)
	var keys []licenseKeyModel
	if err := db.Where("brand_id = ? AND customer_email = ?", brandID, email).
		Order("created_at ASC").
		Find(&keys).Error; err != nil {
		return nil, err
	}
	return r.records(db, keys)
}

func (r *customerReadRepository) records(db *gorm.DB, keys []licenseKeyModel) ([]domain.CustomerKeyRecord, error) {
	out := make([]domain.CustomerKeyRecord, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	keyIDs := make([]uuid.UUID, 0, len(keys))
	brandIDs := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		keyIDs = append(keyIDs, k.LicenseKeyID)
		brandIDs = append(brandIDs, k.BrandID)
	}
	var brands []brandModel
	if err := db.Where("brand_id IN ?", brandIDs).Find(&brands).Error; err != nil {
		return nil, err
	}
	brandByID := make(map[uuid.UUID]domain.Brand, len(brands))
	for _, b := range brands {
		brandByID[b.BrandID] = b.toDomain()
	}
	entitlements, err := loadEntitlements(db, keyIDs)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		ents := entitlements[k.LicenseKeyID]
		if ents == nil {
			ents = []domain.Entitlement{}
		}
		out = append(out, domain.CustomerKeyRecord{
			Brand:        brandByID[k.BrandID],
			Key:          k.toDomain(),
			Entitlements: ents,
		})
	}
	return out, nil
}
