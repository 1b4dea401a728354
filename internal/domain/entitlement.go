package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type KeyStatus string

const (
	KeyStatusActive             KeyStatus = "active"
	KeyStatusInactive           KeyStatus = "inactive"
	KeyStatusPartiallySuspended KeyStatus = "partially_suspended"
	KeyStatusPartiallyCancelled KeyStatus = "partially_cancelled"
	KeyStatusPartiallyExpired   KeyStatus = "partially_expired"
	KeyStatusNoValidLicenses    KeyStatus = "no_valid_licenses"
)

// Entitlement is a license joined with its product and current seat count.
type Entitlement struct {
	License     License
	Product     Product
	ActiveSeats int
}

type ProductEntitlement struct {
	LicenseID      uuid.UUID     `json:"license_id"`
	ProductID      uuid.UUID     `json:"product_id"`
	ProductName    string        `json:"product_name"`
	ProductSlug    string        `json:"product_slug"`
	Status         LicenseStatus `json:"status"`
	IsValid        bool          `json:"is_valid"`
	IsExpired      bool          `json:"is_expired"`
	ExpiresAt      *time.Time    `json:"expires_at"`
	MaxSeats       *int          `json:"max_seats"`
	UsedSeats      int           `json:"used_seats"`
	AvailableSeats *int          `json:"available_seats"`
}

type LicenseKeyStatus struct {
	LicenseKeyID      uuid.UUID            `json:"license_key_id"`
	Key               string               `json:"key"`
	CustomerEmail     string               `json:"customer_email"`
	Active            bool                 `json:"active"`
	Status            KeyStatus            `json:"status"`
	TotalLicenses     int                  `json:"total_licenses"`
	ValidLicenses     int                  `json:"valid_licenses"`
	SuspendedLicenses int                  `json:"suspended_licenses"`
	CancelledLicenses int                  `json:"cancelled_licenses"`
	ExpiredLicenses   int                  `json:"expired_licenses"`
	TotalSeats        int                  `json:"total_seats"`
	UsedSeats         int                  `json:"used_seats"`
	HasUnlimitedSeats bool                 `json:"has_unlimited_seats"`
	Entitlements      []ProductEntitlement `json:"entitlements"`
}

func toProductEntitlement(e Entitlement, now time.Time) ProductEntitlement {
	out := ProductEntitlement{
		LicenseID:   e.License.ID,
		ProductID:   e.Product.ID,
		ProductName: e.Product.Name,
		ProductSlug: e.Product.Slug,
		Status:      e.License.Status,
		IsValid:     e.License.IsValid(now),
		IsExpired:   e.License.Expired(now),
		ExpiresAt:   e.License.ExpiresAt,
		MaxSeats:    e.License.MaxSeats,
		UsedSeats:   e.ActiveSeats,
	}
	if e.License.MaxSeats != nil {
		available := max(0, *e.License.MaxSeats-e.ActiveSeats)
		out.AvailableSeats = &available
	}
	return out
}

// SummarizeLicenseKey builds the entitlement picture of a key.
// TotalSeats sums the caps of capped licenses; UsedSeats sums active seats of
// every license.
func SummarizeLicenseKey(key LicenseKey, entitlements []Entitlement, now time.Time) LicenseKeyStatus {
	out := LicenseKeyStatus{
		LicenseKeyID:  key.ID,
		Key:           key.Key,
		CustomerEmail: key.CustomerEmail,
		Active:        key.Active,
		TotalLicenses: len(entitlements),
		Entitlements:  make([]ProductEntitlement, 0, len(entitlements)),
	}
	for _, e := range entitlements {
		switch {
		case e.License.Status == LicenseStatusSuspended:
			out.SuspendedLicenses++
		case e.License.Status == LicenseStatusCancelled:
			out.CancelledLicenses++
		case e.License.Expired(now):
			out.ExpiredLicenses++
		default:
			out.ValidLicenses++
		}
		if e.License.MaxSeats != nil {
			out.TotalSeats += *e.License.MaxSeats
		} else {
			out.HasUnlimitedSeats = true
		}
		out.UsedSeats += e.ActiveSeats
		out.Entitlements = append(out.Entitlements, toProductEntitlement(e, now))
	}
	sort.Slice(out.Entitlements, func(i, j int) bool {
		return out.Entitlements[i].ProductSlug < out.Entitlements[j].ProductSlug
	})
	out.Status = overallKeyStatus(key.Active, out)
	return out
}

func overallKeyStatus(active bool, s LicenseKeyStatus) KeyStatus {
	switch {
	case !active:
		return KeyStatusInactive
	case s.ValidLicenses == 0:
		return KeyStatusNoValidLicenses
	case s.ValidLicenses == s.TotalLicenses:
		return KeyStatusActive
	case s.SuspendedLicenses > 0:
		return KeyStatusPartiallySuspended
	case s.CancelledLicenses > 0:
		return KeyStatusPartiallyCancelled
	default:
		return KeyStatusPartiallyExpired
	}
}
