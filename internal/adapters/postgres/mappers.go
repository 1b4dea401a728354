package postgres

import (
	"errors"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

func toBrandModel(b domain.Brand) brandModel {
	return brandModel{
		BrandID:    b.ID,
		Name:       b.Name,
		Slug:       b.Slug,
		APIKeyID:   b.APIKeyID,
		APIKeyHash: b.APIKeyHash,
		Active:     b.Active,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func (m brandModel) toDomain() domain.Brand {
	return domain.Brand{
		ID:         m.BrandID,
		Name:       m.Name,
		Slug:       m.Slug,
		APIKeyID:   m.APIKeyID,
		APIKeyHash: m.APIKeyHash,
		Active:     m.Active,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func toProductModel(p domain.Product) productModel {
	return productModel{
		ProductID: p.ID,
		BrandID:   p.BrandID,
		Name:      p.Name,
		Slug:      p.Slug,
		MaxSeats:  p.MaxSeats,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (m productModel) toDomain() domain.Product {
	return domain.Product{
		ID:        m.ProductID,
		BrandID:   m.BrandID,
		Name:      m.Name,
		Slug:      m.Slug,
		MaxSeats:  m.MaxSeats,
		Active:    m.Active,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func toLicenseKeyModel(k domain.LicenseKey) licenseKeyModel {
	return licenseKeyModel{
		LicenseKeyID:  k.ID,
		BrandID:       k.BrandID,
		LicenseKey:    k.Key,
		CustomerEmail: k.CustomerEmail,
		Active:        k.Active,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
	}
}

func (m licenseKeyModel) toDomain() domain.LicenseKey {
	return domain.LicenseKey{
		ID:            m.LicenseKeyID,
		BrandID:       m.BrandID,
		Key:           m.LicenseKey,
		CustomerEmail: m.CustomerEmail,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func toLicenseModel(l domain.License) licenseModel {
	return licenseModel{
		LicenseID:    l.ID,
		LicenseKeyID: l.LicenseKeyID,
		ProductID:    l.ProductID,
		Status:       string(l.Status),
		ExpiresAt:    l.ExpiresAt,
		MaxSeats:     l.MaxSeats,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func (m licenseModel) toDomain() domain.License {
	out := domain.License{
		ID:           m.LicenseID,
		LicenseKeyID: m.LicenseKeyID,
		ProductID:    m.ProductID,
		Status:       domain.LicenseStatus(m.Status),
		MaxSeats:     m.MaxSeats,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC()
		out.ExpiresAt = &t
	}
	return out
}

func toActivationModel(a domain.Activation) activationModel {
	return activationModel{
		ActivationID:       a.ID,
		LicenseID:          a.LicenseID,
		InstanceID:         a.InstanceID,
		InstanceType:       a.InstanceType,
		InstanceURL:        a.InstanceURL,
		MachineID:          a.MachineID,
		Status:             string(a.Status),
		ActivatedAt:        a.ActivatedAt,
		LastSeenAt:         a.LastSeenAt,
		DeactivatedAt:      a.DeactivatedAt,
		DeactivationReason: a.DeactivationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func (m activationModel) toDomain() domain.Activation {
	out := domain.Activation{
		ID:        m.ActivationID,
		LicenseID: m.LicenseID,
		InstanceIdentity: domain.InstanceIdentity{
			InstanceID:   m.InstanceID,
			InstanceType: m.InstanceType,
			InstanceURL:  m.InstanceURL,
			MachineID:    m.MachineID,
		},
		Status:             domain.ActivationStatus(m.Status),
		ActivatedAt:        m.ActivatedAt.UTC(),
		LastSeenAt:         m.LastSeenAt.UTC(),
		DeactivationReason: m.DeactivationReason,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
	if m.DeactivatedAt != nil {
		t := m.DeactivatedAt.UTC()
		out.DeactivatedAt = &t
	}
	return out
}

func toAuditModel(r domain.AuditRecord) activationAuditModel {
	return activationAuditModel{
		AuditID:      r.ID,
		BrandID:      r.BrandID,
		LicenseID:    r.LicenseID,
		Action:       r.Action,
		InstanceID:   r.Identity.InstanceID,
		InstanceType: r.Identity.InstanceType,
		InstanceURL:  r.Identity.InstanceURL,
		MachineID:    r.Identity.MachineID,
		SeatsBefore:  r.SeatsBefore,
		SeatsAfter:   r.SeatsAfter,
		Reason:       r.Reason,
		OccurredAt:   r.OccurredAt,
	}
}

func activationsToDomain(rows []activationModel) []domain.Activation {
	out := make([]domain.Activation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isForeignKeyViolation(err error) bool {
	return errors.Is(err, gorm.ErrForeignKeyViolated)
}

// notFound maps gorm's missing-row error onto the domain error.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
