package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type Config struct {
	ServiceName           string
	IdempotencyTTL        time.Duration
	CredentialCacheTTL    time.Duration
	AccessTokenTTL        time.Duration
	ActivationGracePeriod time.Duration
	ExpirySweepBatch      int
}

// Actor is the authenticated brand a request runs as.
type Actor struct {
	BrandID        uuid.UUID
	BrandSlug      string
	RequestID      string
	IdempotencyKey string
}

type CreateBrandInput struct {
	Name string `json:"name" validate:"required,max=255"`
	Slug string `json:"slug" validate:"required,max=100"`
}

type BrandCredentials struct {
	Brand  domain.Brand `json:"brand"`
	APIKey string       `json:"api_key"`
}

type IssueTokenInput struct {
	APIKey string `json:"api_key" validate:"required"`
}

type AccessToken struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreateProductInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Slug     string `json:"slug" validate:"required,max=100"`
	MaxSeats *int   `json:"max_seats" validate:"omitempty,min=1"`
}

type UpdateProductInput struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=255"`
	MaxSeats      *int    `json:"max_seats" validate:"omitempty,min=1"`
	ClearMaxSeats bool    `json:"clear_max_seats"`
	Active        *bool   `json:"active"`
}

type CreateLicenseKeyInput struct {
	CustomerEmail string `json:"customer_email" validate:"required,email,max=255"`
}

type UpdateLicenseKeyInput struct {
	Active *bool `json:"active" validate:"required"`
}

type CreateLicenseInput struct {
	LicenseKeyID string     `json:"license_key_id" validate:"required,uuid"`
	ProductID    string     `json:"product_id" validate:"required,uuid"`
	ExpiresAt    *time.Time `json:"expires_at"`
	MaxSeats     *int       `json:"max_seats" validate:"omitempty,min=1"`
}

type RenewLicenseInput struct {
	Days      int        `json:"days" validate:"omitempty,min=1,max=3650"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type LicenseView struct {
	domain.License
	IsValid           bool                      `json:"is_valid"`
	IsExpired         bool                      `json:"is_expired"`
	AllowedOperations []domain.LicenseOperation `json:"allowed_operations"`
}

// SeatRequest addresses a license by the customer-facing key and product
// slug, as end-user software knows them.
type SeatRequest struct {
	LicenseKey   string `json:"license_key" validate:"required,max=128"`
	ProductSlug  string `json:"product_slug" validate:"required,max=100"`
	InstanceID   string `json:"instance_id" validate:"max=255"`
	InstanceType string `json:"instance_type" validate:"max=64"`
	InstanceURL  string `json:"instance_url" validate:"omitempty,url,max=2048"`
	MachineID    string `json:"machine_id" validate:"max=255"`
}

func (r SeatRequest) identity() domain.InstanceIdentity {
	return domain.InstanceIdentity{
		InstanceID:   r.InstanceID,
		InstanceType: r.InstanceType,
		InstanceURL:  r.InstanceURL,
		MachineID:    r.MachineID,
	}.Normalize()
}

type DeactivateInput struct {
	SeatRequest
	Reason string `json:"reason" validate:"max=500"`
}

type ForceDeactivateInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ActivationResult struct {
	Activation  domain.Activation `json:"activation"`
	Reactivated bool              `json:"reactivated"`
	LicenseID   uuid.UUID         `json:"license_id"`
	ExpiresAt   *time.Time        `json:"expires_at"`
	Seats       domain.SeatUsage  `json:"seats"`
}

type DeactivationResult struct {
	Activation domain.Activation `json:"activation"`
	Seats      domain.SeatUsage  `json:"seats"`
}

type ForceDeactivateResult struct {
	LicenseID   uuid.UUID `json:"license_id"`
	Deactivated int       `json:"deactivated"`
	Reason      string    `json:"reason"`
}

type VerifyResult struct {
	Entitled      bool                 `json:"entitled"`
	LicenseID     uuid.UUID            `json:"license_id"`
	LicenseStatus domain.LicenseStatus `json:"license_status"`
	IsValid       bool                 `json:"is_valid"`
	ExpiresAt     *time.Time           `json:"expires_at"`
	Activation    *domain.Activation   `json:"activation"`
}
