package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ActivationStatus string

const (
	ActivationStatusActive      ActivationStatus = "active"
	ActivationStatusDeactivated ActivationStatus = "deactivated"
	ActivationStatusExpired     ActivationStatus = "expired"
)

const DefaultForceDeactivationReason = "Deactivated by brand administrator"

// InstanceIdentity names what claimed a seat. InstanceType is descriptive
// only and never takes part in matching.
type InstanceIdentity struct {
	InstanceID   string `json:"instance_id,omitempty"`
	InstanceType string `json:"instance_type,omitempty"`
	InstanceURL  string `json:"instance_url,omitempty"`
	MachineID    string `json:"machine_id,omitempty"`
}

func (i InstanceIdentity) Normalize() InstanceIdentity {
	return InstanceIdentity{
		InstanceID:   strings.TrimSpace(i.InstanceID),
		InstanceType: strings.TrimSpace(i.InstanceType),
		InstanceURL:  strings.TrimSpace(i.InstanceURL),
		MachineID:    strings.TrimSpace(i.MachineID),
	}
}

func (i InstanceIdentity) Validate() error {
	if i.InstanceID == "" && i.InstanceURL == "" && i.MachineID == "" {
		return fmt.Errorf("%w: one of instance_id, instance_url or machine_id is required", ErrInvalidInput)
	}
	return nil
}

// Matches reports whether stored satisfies the query identity i. Every field
// supplied in i must equal the stored field; empty query fields are ignored.
// A stored empty field never equals a supplied value.
func (i InstanceIdentity) Matches(stored InstanceIdentity) bool {
	if i.InstanceID != "" && i.InstanceID != stored.InstanceID {
		return false
	}
	if i.InstanceURL != "" && i.InstanceURL != stored.InstanceURL {
		return false
	}
	if i.MachineID != "" && i.MachineID != stored.MachineID {
		return false
	}
	return i.InstanceID != "" || i.InstanceURL != "" || i.MachineID != ""
}

func (i InstanceIdentity) Label() string {
	parts := make([]string, 0, 3)
	if i.InstanceID != "" {
		parts = append(parts, "instance_id="+i.InstanceID)
	}
	if i.InstanceURL != "" {
		parts = append(parts, "instance_url="+i.InstanceURL)
	}
	if i.MachineID != "" {
		parts = append(parts, "machine_id="+i.MachineID)
	}
	return strings.Join(parts, ",")
}

type Activation struct {
	ID        uuid.UUID `json:"id"`
	LicenseID uuid.UUID `json:"license_id"`
	InstanceIdentity
	Status             ActivationStatus `json:"status"`
	ActivatedAt        time.Time        `json:"activated_at"`
	LastSeenAt         time.Time        `json:"last_seen_at"`
	DeactivatedAt      *time.Time       `json:"deactivated_at"`
	DeactivationReason string           `json:"deactivation_reason,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (a Activation) IsActive() bool { return a.Status == ActivationStatusActive }

func NewActivation(licenseID uuid.UUID, identity InstanceIdentity, now time.Time) Activation {
	return Activation{
		ID:               uuid.New(),
		LicenseID:        licenseID,
		InstanceIdentity: identity,
		Status:           ActivationStatusActive,
		ActivatedAt:      now,
		LastSeenAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Reactivate returns a previously released seat to active. The stored
// identity is kept; a newly supplied instance type replaces the old one.
func (a *Activation) Reactivate(identity InstanceIdentity, now time.Time) {
	a.Status = ActivationStatusActive
	a.ActivatedAt = now
	a.LastSeenAt = now
	a.DeactivatedAt = nil
	a.DeactivationReason = ""
	if identity.InstanceType != "" {
		a.InstanceType = identity.InstanceType
	}
	a.UpdatedAt = now
}

func (a *Activation) Release(status ActivationStatus, reason string, now time.Time) {
	a.Status = status
	a.DeactivatedAt = &now
	a.DeactivationReason = reason
	a.UpdatedAt = now
}

// PickActivation selects the row identity refers to among rows already
// matched for it: an active row wins, then the most recent activation.
func PickActivation(rows []Activation, identity InstanceIdentity) (Activation, bool) {
	var (
		best  Activation
		found bool
	)
	for _, row := range rows {
		if !identity.Matches(row.InstanceIdentity) {
			continue
		}
		if !found || preferActivation(row, best) {
			best = row
			found = true
		}
	}
	return best, found
}

func preferActivation(candidate, current Activation) bool {
	if candidate.IsActive() != current.IsActive() {
		return candidate.IsActive()
	}
	return candidate.ActivatedAt.After(current.ActivatedAt)
}

// AuditRecord traces a seat mutation.
type AuditRecord struct {
	ID          uuid.UUID        `json:"id"`
	BrandID     uuid.UUID        `json:"brand_id"`
	LicenseID   uuid.UUID        `json:"license_id"`
	Action      string           `json:"action"`
	Identity    InstanceIdentity `json:"identity"`
	SeatsBefore int              `json:"seats_before"`
	SeatsAfter  int              `json:"seats_after"`
	Reason      string           `json:"reason,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// ExpiryAudit records a seat the sweeper released from a lapsed license.
// before is the license's active count ahead of this release.
func ExpiryAudit(brandID uuid.UUID, released Activation, before int, now time.Time) AuditRecord {
	return AuditRecord{
		ID:          uuid.New(),
		BrandID:     brandID,
		LicenseID:   released.LicenseID,
		Action:      "expire",
		Identity:    released.InstanceIdentity,
		SeatsBefore: before,
		SeatsAfter:  before - 1,
		Reason:      released.DeactivationReason,
		OccurredAt:  now,
	}
}
