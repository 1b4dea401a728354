package postgres

import (
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Brands      ports.BrandRepository
	Products    ports.ProductRepository
	LicenseKeys ports.LicenseKeyRepository
	Licenses    ports.LicenseRepository
	Seats       ports.SeatLedger
	Customers   ports.CustomerReadRepository
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Brands:      &brandRepository{db: db},
		Products:    &productRepository{db: db},
		LicenseKeys: &licenseKeyRepository{db: db},
		Licenses:    &licenseRepository{db: db},
		Seats:       &seatLedger{db: db},
		Customers:   &customerReadRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
	}
}
