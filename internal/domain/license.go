package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LicenseStatus string

const (
	LicenseStatusValid     LicenseStatus = "valid"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusCancelled LicenseStatus = "cancelled"
)

func (s LicenseStatus) Known() bool {
	switch s {
	case LicenseStatusValid, LicenseStatusSuspended, LicenseStatusCancelled:
		return true
	default:
		return false
	}
}

func (s LicenseStatus) Terminal() bool { return s == LicenseStatusCancelled }

type LicenseOperation string

const (
	LicenseOpRenew   LicenseOperation = "renew"
	LicenseOpSuspend LicenseOperation = "suspend"
	LicenseOpResume  LicenseOperation = "resume"
	LicenseOpCancel  LicenseOperation = "cancel"
)

// licenseTransitions lists, per current status, the operations allowed and
// the status each one lands on. Anything absent is an invalid transition.
var licenseTransitions = map[LicenseStatus]map[LicenseOperation]LicenseStatus{
	LicenseStatusValid: {
		LicenseOpRenew:   LicenseStatusValid,
		LicenseOpSuspend: LicenseStatusSuspended,
		LicenseOpCancel:  LicenseStatusCancelled,
	},
	LicenseStatusSuspended: {
		LicenseOpRenew:   LicenseStatusValid,
		LicenseOpSuspend: LicenseStatusSuspended,
		LicenseOpResume:  LicenseStatusValid,
		LicenseOpCancel:  LicenseStatusCancelled,
	},
	LicenseStatusCancelled: {
		LicenseOpCancel: LicenseStatusCancelled,
	},
}

// NextLicenseStatus resolves op against the transition table.
func NextLicenseStatus(from LicenseStatus, op LicenseOperation) (LicenseStatus, error) {
	next, ok := licenseTransitions[from][op]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s a %s license", ErrInvalidTransition, op, from)
	}
	return next, nil
}

func AllowedOperations(from LicenseStatus) []LicenseOperation {
	out := make([]LicenseOperation, 0, 4)
	for _, op := range []LicenseOperation{LicenseOpRenew, LicenseOpSuspend, LicenseOpResume, LicenseOpCancel} {
		if _, ok := licenseTransitions[from][op]; ok {
			out = append(out, op)
		}
	}
	return out
}

type License struct {
	ID           uuid.UUID     `json:"id"`
	LicenseKeyID uuid.UUID     `json:"license_key_id"`
	ProductID    uuid.UUID     `json:"product_id"`
	Status       LicenseStatus `json:"status"`
	ExpiresAt    *time.Time    `json:"expires_at"`
	MaxSeats     *int          `json:"max_seats"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Expired reports whether the expiration instant has passed. Stored status is
// not consulted.
func (l License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// IsValid is the single usability predicate for seat operations.
func (l License) IsValid(now time.Time) bool {
	return l.Status == LicenseStatusValid && !l.Expired(now)
}

func (l License) SupportsSeatManagement() bool { return l.MaxSeats != nil }

// HasCapacity reports whether one more seat can be claimed with used seats
// already active. Uncapped licenses always have capacity.
func (l License) HasCapacity(used int) bool {
	if l.MaxSeats == nil {
		return true
	}
	return used < *l.MaxSeats
}

const MaxRenewalDays = 3650

// RenewalTerm carries either a day count or an explicit target instant.
type RenewalTerm struct {
	Days  int
	Until *time.Time
}

// RenewedExpiration computes the expiration after a renewal. Day counts
// extend the current expiration when one exists, otherwise now.
func RenewedExpiration(current *time.Time, term RenewalTerm, now time.Time) (time.Time, error) {
	switch {
	case term.Until != nil && term.Days != 0:
		return time.Time{}, fmt.Errorf("%w: provide either days or expires_at, not both", ErrInvalidInput)
	case term.Until != nil:
		if !term.Until.After(now) {
			return time.Time{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
		}
		return term.Until.UTC(), nil
	case term.Days < 1 || term.Days > MaxRenewalDays:
		return time.Time{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidInput, MaxRenewalDays)
	}
	base := now
	if current != nil {
		base = *current
	}
	return base.AddDate(0, 0, term.Days).UTC(), nil
}

// ApplyLicenseOperation moves l through op, renewing the expiration when op is
// a renewal. l is left untouched on error.
func ApplyLicenseOperation(l *License, op LicenseOperation, term RenewalTerm, now time.Time) error {
	next, err := NextLicenseStatus(l.Status, op)
	if err != nil {
		return err
	}
	if op == LicenseOpRenew {
		expiresAt, err := RenewedExpiration(l.ExpiresAt, term, now)
		if err != nil {
			return err
		}
		l.ExpiresAt = &expiresAt
	}
	l.Status = next
	l.UpdatedAt = now
	return nil
}
