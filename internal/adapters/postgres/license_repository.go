package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Licenses carry no brand column; ownership is resolved through the key.
const ownedLicenseJoin = "JOIN license_keys ON license_keys.license_key_id = licenses.license_key_id"

type licenseRepository struct {
	db *gorm.DB
}

func (r *licenseRepository) Create(ctx context.Context, license domain.License) error {
	rec := toLicenseModel(license)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		switch {
		case isForeignKeyViolation(err):
			return domain.ErrNotFound
		case isUniqueViolation(err):
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *licenseRepository) Get(ctx context.Context, brandID, licenseID uuid.UUID) (domain.License, error) {
	return takeOwnedLicense(r.db.WithContext(ctx), brandID, licenseID, false)
}

// takeOwnedLicense loads a license of brandID, optionally holding its row lock
// until tx ends.
func takeOwnedLicense(tx *gorm.DB, brandID, licenseID uuid.UUID, lock bool) (domain.License, error) {
	q := tx.Model(&licenseModel{}).
		Select("licenses.*").
		Joins(ownedLicenseJoin).
		Where("licenses.license_id = ? AND license_keys.brand_id = ?", licenseID, brandID)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "licenses"}})
	}
	var rec licenseModel
	if err := q.Take(&rec).Error; err != nil {
		return domain.License{}, notFound(err)
	}
	return rec.toDomain(), nil
}

func (r *licenseRepository) GetByKeyAndProduct(ctx context.Context, brandID, licenseKeyID, productID uuid.UUID) (domain.License, error) {
	var rec licenseModel
	if err := r.db.WithContext(ctx).
		Model(&licenseModel{}).
		Select("licenses.*").
		Joins(ownedLicenseJoin).
		Where("licenses.license_key_id = ? AND licenses.product_id = ? AND license_keys.brand_id = ?", licenseKeyID, productID, brandID).
		Order("licenses.status = 'cancelled'").
		Order("licenses.created_at DESC").
		Take(&rec).Error; err != nil {
		return domain.License{}, notFound(err)
	}
	return rec.toDomain(), nil
}

func (r *licenseRepository) ListEntitlements(ctx context.Context, brandID, licenseKeyID uuid.UUID) ([]domain.Entitlement, error) {
	db := r.db.WithContext(ctx)
	var key licenseKeyModel
	if err := db.Where("license_key_id = ? AND brand_id = ?", licenseKeyID, brandID).Take(&key).Error; err != nil {
		return nil, notFound(err)
	}
	byKey, err := loadEntitlements(db, []uuid.UUID{licenseKeyID})
	if err != nil {
		return nil, err
	}
	return byKey[licenseKeyID], nil
}

type activeSeatCount struct {
	LicenseID uuid.UUID `gorm:"column:license_id"`
	Seats     int       `gorm:"column:seats"`
}

// loadEntitlements returns the licenses of every key with their product and
// active seat count, in creation order per key.
func loadEntitlements(db *gorm.DB, keyIDs []uuid.UUID) (map[uuid.UUID][]domain.Entitlement, error) {
	out := make(map[uuid.UUID][]domain.Entitlement, len(keyIDs))
	if len(keyIDs) == 0 {
		return out, nil
	}
	var licenses []licenseModel
	if err := db.Where("license_key_id IN ?", keyIDs).Order("created_at ASC").Find(&licenses).Error; err != nil {
		return nil, err
	}
	if len(licenses) == 0 {
		return out, nil
	}

	licenseIDs := make([]uuid.UUID, 0, len(licenses))
	productIDs := make([]uuid.UUID, 0, len(licenses))
	for _, l := range licenses {
		licenseIDs = append(licenseIDs, l.LicenseID)
		productIDs = append(productIDs, l.ProductID)
	}

	var products []productModel
	if err := db.Where("product_id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, err
	}
	productByID := make(map[uuid.UUID]domain.Product, len(products))
	for _, p := range products {
		productByID[p.ProductID] = p.toDomain()
	}

	var counts []activeSeatCount
	if err := db.Model(&activationModel{}).
		Select("license_id, COUNT(*) AS seats").
		Where("license_id IN ? AND status = ?", licenseIDs, string(domain.ActivationStatusActive)).
		Group("license_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	seats := make(map[uuid.UUID]int, len(counts))
	for _, c := range counts {
		seats[c.LicenseID] = c.Seats
	}

	for _, l := range licenses {
		out[l.LicenseKeyID] = append(out[l.LicenseKeyID], domain.Entitlement{
			License:     l.toDomain(),
			Product:     productByID[l.ProductID],
			ActiveSeats: seats[l.LicenseID],
		})
	}
	return out, nil
}

func (r *licenseRepository) Transition(ctx context.Context, brandID, licenseID uuid.UUID, fn func(*domain.License) error) (domain.License, error) {
	var out domain.License
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		license, err := takeOwnedLicense(tx, brandID, licenseID, true)
		if err != nil {
			return err
		}
		if err := fn(&license); err != nil {
			return err
		}
		if err := tx.Model(&licenseModel{}).
			Where("license_id = ?", license.ID).
			Updates(map[string]any{
				"status":     string(license.Status),
				"expires_at": license.ExpiresAt,
				"updated_at": license.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		out = license
		return nil
	})
	return out, err
}
