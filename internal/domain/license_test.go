package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNextLicenseStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from    LicenseStatus
		op      LicenseOperation
		want    LicenseStatus
		wantErr bool
	}{
		{LicenseStatusValid, LicenseOpRenew, LicenseStatusValid, false},
		{LicenseStatusValid, LicenseOpSuspend, LicenseStatusSuspended, false},
		{LicenseStatusValid, LicenseOpResume, LicenseStatusValid, true},
		{LicenseStatusValid, LicenseOpCancel, LicenseStatusCancelled, false},
		{LicenseStatusSuspended, LicenseOpRenew, LicenseStatusValid, false},
		{LicenseStatusSuspended, LicenseOpSuspend, LicenseStatusSuspended, false},
		{LicenseStatusSuspended, LicenseOpResume, LicenseStatusValid, false},
		{LicenseStatusSuspended, LicenseOpCancel, LicenseStatusCancelled, false},
		{LicenseStatusCancelled, LicenseOpRenew, LicenseStatusCancelled, true},
		{LicenseStatusCancelled, LicenseOpSuspend, LicenseStatusCancelled, true},
		{LicenseStatusCancelled, LicenseOpResume, LicenseStatusCancelled, true},
		{LicenseStatusCancelled, LicenseOpCancel, LicenseStatusCancelled, false},
	}
	for _, tc := range cases {
		got, err := NextLicenseStatus(tc.from, tc.op)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected invalid transition, got %v", tc.from, tc.op, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.op, err)
		}
		if got != tc.want {
			t.Fatalf("%s -> %s: got %s want %s", tc.from, tc.op, got, tc.want)
		}
	}
}

func TestLicenseIsValid(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	cases := []struct {
		name    string
		license License
		want    bool
	}{
		{"valid no expiry", License{Status: LicenseStatusValid}, true},
		{"valid future expiry", License{Status: LicenseStatusValid, ExpiresAt: &future}, true},
		{"valid past expiry", License{Status: LicenseStatusValid, ExpiresAt: &past}, false},
		{"valid expiring now", License{Status: LicenseStatusValid, ExpiresAt: &now}, false},
		{"suspended", License{Status: LicenseStatusSuspended}, false},
		{"cancelled", License{Status: LicenseStatusCancelled, ExpiresAt: &future}, false},
	}
	for _, tc := range cases {
		if got := tc.license.IsValid(now); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestRenewedExpiration(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	current := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	got, err := RenewedExpiration(&current, RenewalTerm{Days: 30}, now)
	if err != nil || !got.Equal(current.AddDate(0, 0, 30)) {
		t.Fatalf("extend existing expiration: got %v err %v", got, err)
	}
	got, err = RenewedExpiration(nil, RenewalTerm{Days: 10}, now)
	if err != nil || !got.Equal(now.AddDate(0, 0, 10)) {
		t.Fatalf("extend from now: got %v err %v", got, err)
	}
	target := now.AddDate(1, 0, 0)
	got, err = RenewedExpiration(&current, RenewalTerm{Until: &target}, now)
	if err != nil || !got.Equal(target) {
		t.Fatalf("explicit target: got %v err %v", got, err)
	}

	past := now.Add(-time.Hour)
	for _, term := range []RenewalTerm{{Days: 0}, {Days: -1}, {Days: MaxRenewalDays + 1}, {Until: &past}, {Days: 5, Until: &target}} {
		if _, err := RenewedExpiration(nil, term, now); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("term %+v: expected invalid input, got %v", term, err)
		}
	}
}

func TestApplyLicenseOperationRenewsFromAnyLiveState(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, from := range []LicenseStatus{LicenseStatusValid, LicenseStatusSuspended} {
		l := License{Status: from}
		if err := ApplyLicenseOperation(&l, LicenseOpRenew, RenewalTerm{Days: 1}, now); err != nil {
			t.Fatalf("renew from %s: %v", from, err)
		}
		if l.Status != LicenseStatusValid || l.ExpiresAt == nil {
			t.Fatalf("renew from %s: unexpected license %+v", from, l)
		}
	}
	cancelled := License{Status: LicenseStatusCancelled}
	if err := ApplyLicenseOperation(&cancelled, LicenseOpRenew, RenewalTerm{Days: 1}, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("renew cancelled: expected invalid transition, got %v", err)
	}
	if cancelled.ExpiresAt != nil || cancelled.Status != LicenseStatusCancelled {
		t.Fatalf("cancelled license mutated: %+v", cancelled)
	}
}
