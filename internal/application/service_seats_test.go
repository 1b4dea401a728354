package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/cache"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

func TestSeatCapScenario(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, intPtr(3))
	ctx := context.Background()

	for _, site := range []string{"site-1", "site-2", "site-3"} {
		_, err := f.svc.Activate(ctx, s.actor, s.request(site))
		require.NoError(t, err, site)
	}
	usage, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 3, usage.UsedSeats)
	assert.Equal(t, 0, usage.AvailableSeats)
	assert.Equal(t, 100.0, usage.UsagePercentage)

	_, err = f.svc.Activate(ctx, s.actor, s.request("site-4"))
	require.ErrorIs(t, err, domain.ErrNoAvailableSeats)

	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("site-1")})
	require.NoError(t, err)
	usage, err = f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, usage.UsedSeats)
	assert.Equal(t, 66.67, usage.UsagePercentage)

	res, err := f.svc.Activate(ctx, s.actor, s.request("site-4"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Seats.UsedSeats)
	assert.Equal(t, 100.0, res.Seats.UsagePercentage)
}

func TestActivateTwiceReportsAlreadyActivated(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, intPtr(1))
	ctx := context.Background()

	_, err := f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.ErrorIs(t, err, domain.ErrAlreadyActivated)

	usage, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.UsedSeats)
}

func TestDeactivateActivateRoundTrip(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, intPtr(2))
	ctx := context.Background()
	_, err := f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)
	before, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("site-1")})
	require.NoError(t, err)
	res, err := f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)
	assert.True(t, res.Reactivated)
	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("site-1")})
	require.NoError(t, err)

	after, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	assert.Equal(t, before.UsedSeats-1, after.UsedSeats)

	history, err := f.svc.ListActivations(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	assert.Len(t, history, 1, "reactivation must reuse the identity row")
}

func TestDeactivateErrors(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, nil)
	ctx := context.Background()

	_, err := f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("ghost")})
	require.ErrorIs(t, err, domain.ErrActivationNotFound)

	_, err = f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)
	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("site-1"), Reason: "moved"})
	require.NoError(t, err)
	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("site-1")})
	require.ErrorIs(t, err, domain.ErrNotCurrentlyActive)

	trail := f.repos.Store.AuditTrail()
	require.Len(t, trail, 2)
	assert.Equal(t, "deactivate", trail[1].Action)
	assert.Equal(t, 1, trail[1].SeatsBefore)
	assert.Equal(t, 0, trail[1].SeatsAfter)
	assert.Equal(t, "moved", trail[1].Reason)
}

func TestActivationRejectedOnUnusableLicense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seatedLicense(t, intPtr(5))

	_, err := f.svc.SuspendLicense(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.ErrorIs(t, err, domain.ErrLicenseNotUsable)

	_, err = f.svc.ResumeLicense(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)

	expiry := f.clock.Now().Add(time.Hour)
	other := f.product(t, s.actor, "addon", nil)
	_, err = f.svc.CreateLicense(ctx, s.actor, application.CreateLicenseInput{LicenseKeyID: s.key.ID.String(), ProductID: other.ID.String(), ExpiresAt: &expiry})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Activate(ctx, s.actor, application.SeatRequest{LicenseKey: s.key.Key, ProductSlug: "addon", MachineID: "m-1"})
	require.ErrorIs(t, err, domain.ErrLicenseNotUsable)

	inactive := false
	_, err = f.svc.UpdateLicenseKey(ctx, s.actor, s.key.ID.String(), application.UpdateLicenseKeyInput{Active: &inactive})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, s.actor, s.request("site-2"))
	require.ErrorIs(t, err, domain.ErrLicenseNotUsable)
}

func TestActivateRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, nil)
	_, err := f.svc.Activate(context.Background(), s.actor, application.SeatRequest{LicenseKey: s.key.Key, ProductSlug: s.product.Slug, InstanceType: "cli"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPartialIdentityMatchesStoredRow(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, intPtr(2))
	ctx := context.Background()

	full := s.request("site-1")
	full.InstanceURL = "https://shop.example.com"
	_, err := f.svc.Activate(ctx, s.actor, full)
	require.NoError(t, err)

	// a machine id never stored on the row does not match it
	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: application.SeatRequest{LicenseKey: s.key.Key, ProductSlug: s.product.Slug, MachineID: "site-1"}})
	require.ErrorIs(t, err, domain.ErrActivationNotFound)

	// a subset of the stored fields does
	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: application.SeatRequest{LicenseKey: s.key.Key, ProductSlug: s.product.Slug, InstanceURL: "https://shop.example.com"}})
	require.NoError(t, err)
}

func TestForceDeactivateAll(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, nil)
	ctx := context.Background()

	res, err := f.svc.ForceDeactivateAll(ctx, s.actor, s.license.ID.String(), application.ForceDeactivateInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deactivated)
	assert.Empty(t, f.repos.Store.AuditTrail())

	for i := 0; i < 4; i++ {
		_, err := f.svc.Activate(ctx, s.actor, s.request(fmt.Sprintf("site-%d", i)))
		require.NoError(t, err)
	}
	res, err = f.svc.ForceDeactivateAll(ctx, s.actor, s.license.ID.String(), application.ForceDeactivateInput{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Deactivated)
	assert.Equal(t, domain.DefaultForceDeactivationReason, res.Reason)

	history, err := f.svc.ListActivations(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	for _, a := range history {
		assert.Equal(t, domain.ActivationStatusDeactivated, a.Status)
		assert.Equal(t, domain.DefaultForceDeactivationReason, a.DeactivationReason)
	}
	usage, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	assert.False(t, usage.SupportsSeatManagement)
	assert.Equal(t, 0, usage.UsedSeats)
}

func TestVerifyActivationTouchesLastSeen(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, intPtr(1))
	ctx := context.Background()

	res, err := f.svc.VerifyActivation(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)
	assert.False(t, res.Entitled)
	assert.Nil(t, res.Activation)

	_, err = f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	res, err = f.svc.VerifyActivation(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)
	assert.True(t, res.Entitled)

	usage, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	require.Len(t, usage.ActiveSeats, 1)
	assert.True(t, usage.ActiveSeats[0].LastSeenAt.Equal(f.clock.Now()))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestActivationsThrottledPerLicenseKey(t *testing.T) {
	f := newFixture(t, func(deps *application.Dependencies) {
		deps.ActivationLimiter = cache.NewLocalWindowLimiter(3, 24*time.Hour).WithClock(deps.Clock)
	})
	ctx := context.Background()
	s := f.seatedLicense(t, nil)

	for i := 1; i <= 3; i++ {
		_, err := f.svc.Activate(ctx, s.actor, s.request(fmt.Sprintf("site-%d", i)))
		require.NoError(t, err)
	}
	_, err := f.svc.Activate(ctx, s.actor, s.request("site-4"))
	require.ErrorIs(t, err, domain.ErrRateLimited)

	// deactivation is never throttled
	_, err = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("site-1")})
	require.NoError(t, err)

	other := f.key(t, s.actor, "john@example.com")
	f.license(t, s.actor, other, s.product, nil)
	_, err = f.svc.Activate(ctx, s.actor, application.SeatRequest{LicenseKey: other.Key, ProductSlug: s.product.Slug, InstanceID: "site-4"})
	require.NoError(t, err, "each license key has its own window")

	f.clock.Advance(24*time.Hour + time.Second)
	_, err = f.svc.Activate(ctx, s.actor, s.request("site-4"))
	require.NoError(t, err)
}

func TestActivationLimiterFailureLetsActivationThrough(t *testing.T) {
	f := newFixture(t, func(deps *application.Dependencies) {
		deps.ActivationLimiter = failingLimiter{}
	})
	s := f.seatedLicense(t, intPtr(1))
	_, err := f.svc.Activate(context.Background(), s.actor, s.request("site-1"))
	require.NoError(t, err)
}

func TestExpireLapsedActivations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor, _ := f.brand(t, "acme")
	product := f.product(t, actor, "plugin", intPtr(1))
	key := f.key(t, actor, "jane@example.com")
	expiry := f.clock.Now().Add(time.Hour)
	license, err := f.svc.CreateLicense(ctx, actor, application.CreateLicenseInput{LicenseKeyID: key.ID.String(), ProductID: product.ID.String(), ExpiresAt: &expiry})
	require.NoError(t, err)
	req := application.SeatRequest{LicenseKey: key.Key, ProductSlug: product.Slug, InstanceID: "site-1"}
	_, err = f.svc.Activate(ctx, actor, req)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	released, err := f.svc.ExpireLapsedActivations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released, "grace period has not passed")

	f.clock.Advance(48 * time.Hour)
	released, err = f.svc.ExpireLapsedActivations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	trail := f.repos.Store.AuditTrail()
	expired := trail[len(trail)-1]
	assert.Equal(t, "expire", expired.Action)
	assert.Equal(t, actor.BrandID, expired.BrandID)
	assert.Equal(t, license.ID, expired.LicenseID)
	assert.Equal(t, "site-1", expired.Identity.InstanceID)
	assert.Equal(t, 1, expired.SeatsBefore)
	assert.Equal(t, 0, expired.SeatsAfter)

	_, err = f.svc.RenewLicense(ctx, actor, license.ID.String(), application.RenewLicenseInput{Days: 30})
	require.NoError(t, err)
	res, err := f.svc.Activate(ctx, actor, req)
	require.NoError(t, err)
	assert.True(t, res.Reactivated)
	assert.Contains(t, f.repos.Outbox.Pending(), "activation.expired")
}

func TestConcurrentActivationsNeverExceedCap(t *testing.T) {
	f := newFixture(t)
	s := f.seatedLicense(t, intPtr(5))
	ctx := context.Background()

	var granted, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		site := fmt.Sprintf("site-%d", i)
		g.Go(func() error {
			_, err := f.svc.Activate(ctx, s.actor, s.request(site))
			switch {
			case err == nil:
				granted.Add(1)
			case assert.ErrorIs(t, err, domain.ErrNoAvailableSeats):
				rejected.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 5, granted.Load())
	assert.EqualValues(t, 35, rejected.Load())

	usage, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 5, usage.UsedSeats)
}

func TestSeatCapHoldsUnderParallelLoad(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("active seats never exceed the cap", prop.ForAll(
		func(seatCap, workers int, churn bool) bool {
			f := newFixture(t)
			s := f.seatedLicense(t, intPtr(seatCap))
			ctx := context.Background()

			var g errgroup.Group
			for i := 0; i < workers; i++ {
				site := fmt.Sprintf("site-%d", i%(seatCap+2))
				g.Go(func() error {
					if _, err := f.svc.Activate(ctx, s.actor, s.request(site)); err == nil && churn {
						_, _ = f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request(site)})
					}
					return nil
				})
			}
			_ = g.Wait()

			usage, err := f.svc.SeatUsage(ctx, s.actor, s.license.ID.String())
			if err != nil || usage.UsedSeats > seatCap {
				return false
			}
			for _, rec := range f.repos.Store.AuditTrail() {
				if rec.SeatsAfter > seatCap || rec.SeatsAfter < 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 24),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
