package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInstanceIdentityMatches(t *testing.T) {
	t.Parallel()
	stored := InstanceIdentity{InstanceID: "site-1", InstanceURL: "https://a.example"}
	cases := []struct {
		name  string
		query InstanceIdentity
		want  bool
	}{
		{"id only", InstanceIdentity{InstanceID: "site-1"}, true},
		{"url only", InstanceIdentity{InstanceURL: "https://a.example"}, true},
		{"id and url", InstanceIdentity{InstanceID: "site-1", InstanceURL: "https://a.example"}, true},
		{"different url", InstanceIdentity{InstanceID: "site-1", InstanceURL: "https://b.example"}, false},
		{"machine not stored", InstanceIdentity{MachineID: "m-1"}, false},
		{"type ignored", InstanceIdentity{InstanceID: "site-1", InstanceType: "wordpress"}, true},
		{"empty query", InstanceIdentity{}, false},
	}
	for _, tc := range cases {
		if got := tc.query.Matches(stored); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestInstanceIdentityValidate(t *testing.T) {
	t.Parallel()
	if err := (InstanceIdentity{InstanceType: "cli"}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for type-only identity, got %v", err)
	}
	if err := (InstanceIdentity{MachineID: "m"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPickActivationPrefersActiveThenLatest(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	licenseID := uuid.New()
	older := NewActivation(licenseID, InstanceIdentity{InstanceID: "site-1", MachineID: "m-1"}, base)
	older.Release(ActivationStatusDeactivated, "", base.Add(time.Hour))
	newer := NewActivation(licenseID, InstanceIdentity{InstanceID: "site-1", MachineID: "m-2"}, base.Add(2*time.Hour))
	newer.Release(ActivationStatusDeactivated, "", base.Add(3*time.Hour))
	active := NewActivation(licenseID, InstanceIdentity{InstanceID: "site-1"}, base)

	got, ok := PickActivation([]Activation{older, newer}, InstanceIdentity{InstanceID: "site-1"})
	if !ok || got.ID != newer.ID {
		t.Fatalf("expected most recent row, got %+v", got)
	}
	got, ok = PickActivation([]Activation{older, active, newer}, InstanceIdentity{InstanceID: "site-1"})
	if !ok || got.ID != active.ID {
		t.Fatalf("expected active row, got %+v", got)
	}
	if _, ok := PickActivation([]Activation{older}, InstanceIdentity{MachineID: "m-9"}); ok {
		t.Fatalf("expected no match")
	}
}

func TestReactivateClearsRelease(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewActivation(uuid.New(), InstanceIdentity{InstanceID: "site-1", InstanceType: "wordpress"}, now)
	a.Release(ActivationStatusDeactivated, "moved", now.Add(time.Hour))
	a.Reactivate(InstanceIdentity{InstanceID: "site-1"}, now.Add(2*time.Hour))
	if !a.IsActive() || a.DeactivatedAt != nil || a.DeactivationReason != "" {
		t.Fatalf("unexpected activation after reactivate: %+v", a)
	}
	if a.InstanceType != "wordpress" || !a.ActivatedAt.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("unexpected identity or timestamp: %+v", a)
	}
}
