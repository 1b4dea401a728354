package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Brand is a tenant. APIKeyHash never leaves the service.
type Brand struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	APIKeyID   string    `json:"api_key_id"`
	APIKeyHash string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Product struct {
	ID        uuid.UUID `json:"id"`
	BrandID   uuid.UUID `json:"brand_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	MaxSeats  *int      `json:"max_seats"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LicenseKey struct {
	ID            uuid.UUID `json:"id"`
	BrandID       uuid.UUID `json:"brand_id"`
	Key           string    `json:"key"`
	CustomerEmail string    `json:"customer_email"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug must be lower-case alphanumeric words separated by dashes", ErrInvalidInput)
	}
	return nil
}

// ValidateSeatCap accepts nil (unlimited) or a positive cap.
func ValidateSeatCap(maxSeats *int) error {
	if maxSeats != nil && *maxSeats < 1 {
		return fmt.Errorf("%w: max_seats must be at least 1", ErrInvalidInput)
	}
	return nil
}
