package domain

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

const Unlimited = "unlimited"

type SeatHolder struct {
	ActivationID uuid.UUID `json:"activation_id"`
	InstanceIdentity
	ActivatedAt time.Time `json:"activated_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// SeatUsage is the capacity picture of one license. When the license is
// uncapped, TotalSeats, AvailableSeats and UsagePercentage are meaningless
// and serialize as "unlimited".
type SeatUsage struct {
	LicenseID              uuid.UUID
	SupportsSeatManagement bool
	TotalSeats             int
	UsedSeats              int
	AvailableSeats         int
	UsagePercentage        float64
	ActiveSeats            []SeatHolder
}

func ComputeSeatUsage(license License, active []Activation) SeatUsage {
	holders := make([]SeatHolder, 0, len(active))
	for _, a := range active {
		if !a.IsActive() {
			continue
		}
		holders = append(holders, SeatHolder{
			ActivationID:     a.ID,
			InstanceIdentity: a.InstanceIdentity,
			ActivatedAt:      a.ActivatedAt,
			LastSeenAt:       a.LastSeenAt,
		})
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].ActivatedAt.Before(holders[j].ActivatedAt) })

	usage := SeatUsage{
		LicenseID:              license.ID,
		SupportsSeatManagement: license.SupportsSeatManagement(),
		UsedSeats:              len(holders),
		ActiveSeats:            holders,
	}
	if license.MaxSeats == nil {
		return usage
	}
	usage.TotalSeats = *license.MaxSeats
	usage.AvailableSeats = max(0, usage.TotalSeats-usage.UsedSeats)
	usage.UsagePercentage = UsagePercentage(usage.UsedSeats, usage.TotalSeats)
	return usage
}

// UsagePercentage rounds used/total to two decimals; zero total yields 0.
func UsagePercentage(used, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(used)/float64(total)*100*100) / 100
}

func (u SeatUsage) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"license_id":               u.LicenseID,
		"supports_seat_management": u.SupportsSeatManagement,
		"used_seats":               u.UsedSeats,
		"active_seats":             u.ActiveSeats,
	}
	if u.SupportsSeatManagement {
		out["total_seats"] = u.TotalSeats
		out["available_seats"] = u.AvailableSeats
		out["usage_percentage"] = u.UsagePercentage
	} else {
		out["total_seats"] = Unlimited
		out["available_seats"] = Unlimited
		out["usage_percentage"] = Unlimited
	}
	return json.Marshal(out)
}
