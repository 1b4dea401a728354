package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// seatLedger serializes seat mutations with SELECT ... FOR UPDATE on the
// license row. Every activation write for a license happens while that lock
// is held, so the count read inside the transaction stays accurate.
type seatLedger struct {
	db *gorm.DB
}

func (l *seatLedger) WithLicenseLock(ctx context.Context, brandID, licenseID uuid.UUID, fn func(ctx context.Context, tx ports.SeatLedgerTx) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		license, err := takeOwnedLicense(tx, brandID, licenseID, true)
		if err != nil {
			return err
		}
		return fn(ctx, &seatTx{tx: tx, license: license})
	})
}

func (l *seatLedger) ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	var rows []activationModel
	if err := l.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("activated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return activationsToDomain(rows), nil
}

func (l *seatLedger) ListActive(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	return listActive(l.db.WithContext(ctx), licenseID)
}

func listActive(db *gorm.DB, licenseID uuid.UUID) ([]domain.Activation, error) {
	var rows []activationModel
	if err := db.Where("license_id = ? AND status = ?", licenseID, string(domain.ActivationStatusActive)).
		Order("activated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return activationsToDomain(rows), nil
}

func (l *seatLedger) Touch(ctx context.Context, activationID uuid.UUID, at time.Time) error {
	res := l.db.WithContext(ctx).
		Model(&activationModel{}).
		Where("activation_id = ?", activationID).
		Updates(map[string]any{"last_seen_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrActivationNotFound
	}
	return nil
}

type lapsedLicense struct {
	LicenseID uuid.UUID `gorm:"column:license_id"`
	BrandID   uuid.UUID `gorm:"column:brand_id"`
}

// ExpireLapsed locks a batch of lapsed licenses that still hold seats,
// skipping ones a request is currently mutating, releases their seats and
// audits each release under the owning brand.
func (l *seatLedger) ExpireLapsed(ctx context.Context, cutoff, now time.Time, limit int) ([]domain.Activation, error) {
	if limit <= 0 {
		limit = 500
	}
	released := make([]domain.Activation, 0)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lapsed []lapsedLicense
		if err := tx.Model(&licenseModel{}).
			Select("licenses.license_id, license_keys.brand_id").
			Joins(ownedLicenseJoin).
			Where("licenses.expires_at IS NOT NULL AND licenses.expires_at < ?", cutoff).
			Where("EXISTS (SELECT 1 FROM activations a WHERE a.license_id = licenses.license_id AND a.status = ?)", string(domain.ActivationStatusActive)).
			Order("licenses.expires_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "licenses"}, Options: "SKIP LOCKED"}).
			Scan(&lapsed).Error; err != nil {
			return err
		}
		if len(lapsed) == 0 {
			return nil
		}
		brandOf := make(map[uuid.UUID]uuid.UUID, len(lapsed))
		licenseIDs := make([]uuid.UUID, 0, len(lapsed))
		for _, row := range lapsed {
			brandOf[row.LicenseID] = row.BrandID
			licenseIDs = append(licenseIDs, row.LicenseID)
		}

		var counts []activeSeatCount
		if err := tx.Model(&activationModel{}).
			Select("license_id, COUNT(*) AS seats").
			Where("license_id IN ? AND status = ?", licenseIDs, string(domain.ActivationStatusActive)).
			Group("license_id").
			Scan(&counts).Error; err != nil {
			return err
		}
		remaining := make(map[uuid.UUID]int, len(counts))
		for _, c := range counts {
			remaining[c.LicenseID] = c.Seats
		}

		var rows []activationModel
		if err := tx.Where("license_id IN ? AND status = ?", licenseIDs, string(domain.ActivationStatusActive)).
			Order("activated_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			a := row.toDomain()
			a.Release(domain.ActivationStatusExpired, "license expired", now)
			if err := saveActivation(tx, a); err != nil {
				return err
			}
			audit := toAuditModel(domain.ExpiryAudit(brandOf[a.LicenseID], a, remaining[a.LicenseID], now))
			if err := tx.Create(&audit).Error; err != nil {
				return err
			}
			remaining[a.LicenseID]--
			released = append(released, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func saveActivation(tx *gorm.DB, a domain.Activation) error {
	res := tx.Model(&activationModel{}).
		Where("activation_id = ? AND license_id = ?", a.ID, a.LicenseID).
		Updates(map[string]any{
			"instance_id":         a.InstanceID,
			"instance_type":       a.InstanceType,
			"instance_url":        a.InstanceURL,
			"machine_id":          a.MachineID,
			"status":              string(a.Status),
			"activated_at":        a.ActivatedAt,
			"last_seen_at":        a.LastSeenAt,
			"deactivated_at":      a.DeactivatedAt,
			"deactivation_reason": a.DeactivationReason,
			"updated_at":          a.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrAlreadyActivated
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrActivationNotFound
	}
	return nil
}

type seatTx struct {
	tx      *gorm.DB
	license domain.License
}

func (t *seatTx) License() domain.License { return t.license }

func (t *seatTx) CountActive(ctx context.Context) (int, error) {
	var n int64
	if err := t.tx.WithContext(ctx).
		Model(&activationModel{}).
		Where("license_id = ? AND status = ?", t.license.ID, string(domain.ActivationStatusActive)).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// FindByIdentity matches on every identity field the caller supplied.
// Instance type is descriptive and never part of the match.
func (t *seatTx) FindByIdentity(ctx context.Context, identity domain.InstanceIdentity) ([]domain.Activation, error) {
	q := t.tx.WithContext(ctx).Where("license_id = ?", t.license.ID)
	supplied := false
	for _, field := range []struct{ column, value string }{
		{"instance_id", identity.InstanceID},
		{"instance_url", identity.InstanceURL},
		{"machine_id", identity.MachineID},
	} {
		if field.value == "" {
			continue
		}
		q = q.Where(field.column+" = ?", field.value)
		supplied = true
	}
	if !supplied {
		return []domain.Activation{}, nil
	}
	var rows []activationModel
	if err := q.Order("activated_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return activationsToDomain(rows), nil
}

func (t *seatTx) ListActive(ctx context.Context) ([]domain.Activation, error) {
	return listActive(t.tx.WithContext(ctx), t.license.ID)
}

func (t *seatTx) Insert(ctx context.Context, activation domain.Activation) error {
	rec := toActivationModel(activation)
	if err := t.tx.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyActivated
		}
		return err
	}
	return nil
}

func (t *seatTx) Save(ctx context.Context, activation domain.Activation) error {
	if activation.LicenseID != t.license.ID {
		return domain.ErrActivationNotFound
	}
	return saveActivation(t.tx.WithContext(ctx), activation)
}

func (t *seatTx) AppendAudit(ctx context.Context, record domain.AuditRecord) error {
	rec := toAuditModel(record)
	return t.tx.WithContext(ctx).Create(&rec).Error
}
