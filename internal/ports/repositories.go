package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// Every brand-scoped lookup takes the brand id explicitly. A row owned by
// another brand is reported as domain.ErrNotFound.

type BrandRepository interface {
	Create(ctx context.Context, brand domain.Brand) error
	GetByID(ctx context.Context, brandID uuid.UUID) (domain.Brand, error)
	GetBySlug(ctx context.Context, slug string) (domain.Brand, error)
	GetByAPIKeyID(ctx context.Context, keyID string) (domain.Brand, error)
	Update(ctx context.Context, brand domain.Brand) error
	List(ctx context.Context) ([]domain.Brand, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product domain.Product) error
	Get(ctx context.Context, brandID, productID uuid.UUID) (domain.Product, error)
	GetBySlug(ctx context.Context, brandID uuid.UUID, slug string) (domain.Product, error)
	List(ctx context.Context, brandID uuid.UUID) ([]domain.Product, error)
	Update(ctx context.Context, product domain.Product) error
}

type LicenseKeyRepository interface {
	Create(ctx context.Context, key domain.LicenseKey) error
	Get(ctx context.Context, brandID, licenseKeyID uuid.UUID) (domain.LicenseKey, error)
	GetByKey(ctx context.Context, brandID uuid.UUID, key string) (domain.LicenseKey, error)
	Update(ctx context.Context, key domain.LicenseKey) error
}

type LicenseRepository interface {
	Create(ctx context.Context, license domain.License) error
	Get(ctx context.Context, brandID, licenseID uuid.UUID) (domain.License, error)
	GetByKeyAndProduct(ctx context.Context, brandID, licenseKeyID, productID uuid.UUID) (domain.License, error)
	// ListEntitlements returns every license of the key joined with its
	// product and active seat count.
	ListEntitlements(ctx context.Context, brandID, licenseKeyID uuid.UUID) ([]domain.Entitlement, error)
	// Transition loads the license under a row lock, hands it to fn and
	// persists the result when fn returns nil.
	Transition(ctx context.Context, brandID, licenseID uuid.UUID, fn func(*domain.License) error) (domain.License, error)
}

// SeatLedger serializes seat mutations per license.
type SeatLedger interface {
	WithLicenseLock(ctx context.Context, brandID, licenseID uuid.UUID, fn func(ctx context.Context, tx SeatLedgerTx) error) error
	ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error)
	ListActive(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error)
	Touch(ctx context.Context, activationID uuid.UUID, at time.Time) error
	// ExpireLapsed marks active activations of licenses whose expiration is
	// before cutoff as expired and returns how many were released.
	ExpireLapsed(ctx context.Context, cutoff, now time.Time, limit int) ([]domain.Activation, error)
}

// SeatLedgerTx is valid only inside WithLicenseLock.
type SeatLedgerTx interface {
	License() domain.License
	CountActive(ctx context.Context) (int, error)
	FindByIdentity(ctx context.Context, identity domain.InstanceIdentity) ([]domain.Activation, error)
	ListActive(ctx context.Context) ([]domain.Activation, error)
	Insert(ctx context.Context, activation domain.Activation) error
	Save(ctx context.Context, activation domain.Activation) error
	AppendAudit(ctx context.Context, record domain.AuditRecord) error
}

// CustomerReadRepository is the only read path that crosses brands.
type CustomerReadRepository interface {
	AcrossBrands(ctx context.Context, email string) ([]domain.CustomerKeyRecord, error)
	InBrand(ctx context.Context, brandID uuid.UUID, email string) ([]domain.CustomerKeyRecord, error)
}

const (
	IdempotencyReserved  = "reserved"
	IdempotencyCompleted = "completed"
)

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	Release(ctx context.Context, key string) error
}
