package postgres

import (
	"time"

	"github.com/google/uuid"
)

type brandModel struct {
	BrandID    uuid.UUID `gorm:"column:brand_id;type:uuid;primaryKey"`
	Name       string    `gorm:"column:name"`
	Slug       string    `gorm:"column:slug"`
	APIKeyID   string    `gorm:"column:api_key_id"`
	APIKeyHash string    `gorm:"column:api_key_hash"`
	Active     bool      `gorm:"column:active"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (brandModel) TableName() string { return "brands" }

type productModel struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	BrandID   uuid.UUID `gorm:"column:brand_id;type:uuid"`
	Name      string    `gorm:"column:name"`
	Slug      string    `gorm:"column:slug"`
	MaxSeats  *int      `gorm:"column:max_seats"`
	Active    bool      `gorm:"column:active"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (productModel) TableName() string { return "products" }

type licenseKeyModel struct {
	LicenseKeyID  uuid.UUID `gorm:"column:license_key_id;type:uuid;primaryKey"`
	BrandID       uuid.UUID `gorm:"column:brand_id;type:uuid"`
	LicenseKey    string    `gorm:"column:license_key"`
	CustomerEmail string    `gorm:"column:customer_email"`
	Active        bool      `gorm:"column:active"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (licenseKeyModel) TableName() string { return "license_keys" }

type licenseModel struct {
	LicenseID    uuid.UUID  `gorm:"column:license_id;type:uuid;primaryKey"`
	LicenseKeyID uuid.UUID  `gorm:"column:license_key_id;type:uuid"`
	ProductID    uuid.UUID  `gorm:"column:product_id;type:uuid"`
	Status       string     `gorm:"column:status"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	MaxSeats     *int       `gorm:"column:max_seats"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (licenseModel) TableName() string { return "licenses" }

type activationModel struct {
	ActivationID       uuid.UUID  `gorm:"column:activation_id;type:uuid;primaryKey"`
	LicenseID          uuid.UUID  `gorm:"column:license_id;type:uuid"`
	InstanceID         string     `gorm:"column:instance_id"`
	InstanceType       string     `gorm:"column:instance_type"`
	InstanceURL        string     `gorm:"column:instance_url"`
	MachineID          string     `gorm:"column:machine_id"`
	Status             string     `gorm:"column:status"`
	ActivatedAt        time.Time  `gorm:"column:activated_at"`
	LastSeenAt         time.Time  `gorm:"column:last_seen_at"`
	DeactivatedAt      *time.Time `gorm:"column:deactivated_at"`
	DeactivationReason string     `gorm:"column:deactivation_reason"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (activationModel) TableName() string { return "activations" }

type activationAuditModel struct {
	AuditID      uuid.UUID `gorm:"column:audit_id;type:uuid;primaryKey"`
	BrandID      uuid.UUID `gorm:"column:brand_id;type:uuid"`
	LicenseID    uuid.UUID `gorm:"column:license_id;type:uuid"`
	Action       string    `gorm:"column:action"`
	InstanceID   string    `gorm:"column:instance_id"`
	InstanceType string    `gorm:"column:instance_type"`
	InstanceURL  string    `gorm:"column:instance_url"`
	MachineID    string    `gorm:"column:machine_id"`
	SeatsBefore  int       `gorm:"column:seats_before"`
	SeatsAfter   int       `gorm:"column:seats_after"`
	Reason       string    `gorm:"column:reason"`
	OccurredAt   time.Time `gorm:"column:occurred_at"`
}

func (activationAuditModel) TableName() string { return "activation_audit" }

type licenseOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (licenseOutboxModel) TableName() string { return "license_outbox" }

type licenseIdempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:jsonb"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (licenseIdempotencyModel) TableName() string { return "license_idempotency" }
