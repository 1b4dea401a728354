package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

type brandRepository struct {
	db *gorm.DB
}

func (r *brandRepository) Create(ctx context.Context, brand domain.Brand) error {
	rec := toBrandModel(brand)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *brandRepository) GetByID(ctx context.Context, brandID uuid.UUID) (domain.Brand, error) {
	return r.take(ctx, "brand_id = ?", brandID)
}

func (r *brandRepository) GetBySlug(ctx context.Context, slug string) (domain.Brand, error) {
	return r.take(ctx, "slug = ?", slug)
}

func (r *brandRepository) GetByAPIKeyID(ctx context.Context, keyID string) (domain.Brand, error) {
	return r.take(ctx, "api_key_id = ?", keyID)
}

func (r *brandRepository) take(ctx context.Context, query string, arg any) (domain.Brand, error) {
	var rec brandModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&rec).Error; err != nil {
		return domain.Brand{}, notFound(err)
	}
	return rec.toDomain(), nil
}

func (r *brandRepository) Update(ctx context.Context, brand domain.Brand) error {
	res := r.db.WithContext(ctx).
		Model(&brandModel{}).
		Where("brand_id = ?", brand.ID).
		Updates(map[string]any{
			"name":         brand.Name,
			"api_key_id":   brand.APIKeyID,
			"api_key_hash": brand.APIKeyHash,
			"active":       brand.Active,
			"updated_at":   brand.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *brandRepository) List(ctx context.Context) ([]domain.Brand, error) {
	var rows []brandModel
	if err := r.db.WithContext(ctx).Order("slug ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Brand, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type productRepository struct {
	db *gorm.DB
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	rec := toProductModel(product)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrConflict
		case isForeignKeyViolation(err):
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, brandID, productID uuid.UUID) (domain.Product, error) {
	var rec productModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND brand_id = ?", productID, brandID).
		Take(&rec).Error; err != nil {
		return domain.Product{}, notFound(err)
	}
	return rec.toDomain(), nil
}

func (r *productRepository) GetBySlug(ctx context.Context, brandID uuid.UUID, slug string) (domain.Product, error) {
	var rec productModel
	if err := r.db.WithContext(ctx).
		Where("brand_id = ? AND slug = ?", brandID, slug).
		Take(&rec).Error; err != nil {
		return domain.Product{}, notFound(err)
	}
	return rec.toDomain(), nil
}

func (r *productRepository) List(ctx context.Context, brandID uuid.UUID) ([]domain.Product, error) {
	var rows []productModel
	if err := r.db.WithContext(ctx).
		Where("brand_id = ?", brandID).
		Order("slug ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	res := r.db.WithContext(ctx).
		Model(&productModel{}).
		Where("product_id = ? AND brand_id = ?", product.ID, product.BrandID).
		Updates(map[string]any{
			"name":       product.Name,
			"max_seats":  product.MaxSeats,
			"active":     product.Active,
			"updated_at": product.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type licenseKeyRepository struct {
	db *gorm.DB
}

func (r *licenseKeyRepository) Create(ctx context.Context, key domain.LicenseKey) error {
	rec := toLicenseKeyModel(key)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *licenseKeyRepository) Get(ctx context.Context, brandID, licenseKeyID uuid.UUID) (domain.LicenseKey, error) {
	var rec licenseKeyModel
	if err := r.db.WithContext(ctx).
		Where("license_key_id = ? AND brand_id = ?", licenseKeyID, brandID).
		Take(&rec).Error; err != nil {
		return domain.LicenseKey{}, notFound(err)
	}
	return rec.toDomain(), nil
}

func (r *licenseKeyRepository) GetByKey(ctx context.Context, brandID uuid.UUID, key string) (domain.LicenseKey, error) {
	var rec licenseKeyModel
	if err := r.db.WithContext(ctx).
		Where("license_key = ? AND brand_id = ?", key, brandID).
		Take(&rec).Error; err != nil {
		return domain.LicenseKey{}, notFound(err)
	}
	return rec.toDomain(), nil
}

func (r *licenseKeyRepository) Update(ctx context.Context, key domain.LicenseKey) error {
	res := r.db.WithContext(ctx).
		Model(&licenseKeyModel{}).
		Where("license_key_id = ? AND brand_id = ?", key.ID, key.BrandID).
		Updates(map[string]any{
			"active":     key.Active,
			"updated_at": key.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
