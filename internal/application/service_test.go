package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

func TestCreateBrandRejectsDuplicateSlug(t *testing.T) {
	f := newFixture(t)
	f.brand(t, "acme")
	_, err := f.svc.CreateBrand(context.Background(), application.CreateBrandInput{Name: "Acme 2", Slug: "ACME"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.CreateBrand(context.Background(), application.CreateBrandInput{Name: "Bad", Slug: "not a slug"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor, creds := f.brand(t, "acme")
	assert.Equal(t, creds.Brand.ID, actor.BrandID)
	assert.Equal(t, "acme", actor.BrandSlug)

	_, err := f.svc.AuthenticateAPIKey(ctx, creds.Brand.APIKeyID+".wrong")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.AuthenticateAPIKey(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	token, err := f.svc.IssueAccessToken(ctx, application.IssueTokenInput{APIKey: creds.APIKey})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	fromToken, err := f.svc.AuthenticateToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, actor.BrandID, fromToken.BrandID)

	// cached credentials must not outlive a disabled brand
	_, err = f.svc.SetBrandActive(ctx, "acme", false)
	require.NoError(t, err)
	_, err = f.svc.AuthenticateAPIKey(ctx, creds.APIKey)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.AuthenticateToken(ctx, token.Token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRotateBrandCredentialRevokesOldKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, creds := f.brand(t, "acme")

	rotated, err := f.svc.RotateBrandCredential(ctx, "acme")
	require.NoError(t, err)
	assert.NotEqual(t, creds.APIKey, rotated.APIKey)

	_, err = f.svc.AuthenticateAPIKey(ctx, creds.APIKey)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	actor, err := f.svc.AuthenticateAPIKey(ctx, rotated.APIKey)
	require.NoError(t, err)
	assert.Equal(t, creds.Brand.ID, actor.BrandID)
}

func TestCrossBrandReferencesAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme, _ := f.brand(t, "acme")
	globex, _ := f.brand(t, "globex")
	acmeKey := f.key(t, acme, "jane@example.com")
	globexProduct := f.product(t, globex, "suite", nil)

	_, err := f.svc.CreateLicense(ctx, acme, application.CreateLicenseInput{LicenseKeyID: acmeKey.ID.String(), ProductID: globexProduct.ID.String()})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetLicenseKey(ctx, globex, acmeKey.ID.String())
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetProduct(ctx, acme, globexProduct.ID.String())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateLicenseDefaultsCapFromProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor, _ := f.brand(t, "acme")
	product := f.product(t, actor, "plugin", intPtr(5))
	key := f.key(t, actor, "jane@example.com")

	inherited := f.license(t, actor, key, product, nil)
	require.NotNil(t, inherited.MaxSeats)
	assert.Equal(t, 5, *inherited.MaxSeats)
	assert.True(t, inherited.IsValid)

	addon := f.product(t, actor, "addon", nil)
	explicit := f.license(t, actor, key, addon, intPtr(2))
	assert.Equal(t, 2, *explicit.MaxSeats)

	past := f.clock.Now().Add(-time.Minute)
	_, err := f.svc.CreateLicense(ctx, actor, application.CreateLicenseInput{LicenseKeyID: key.ID.String(), ProductID: product.ID.String(), ExpiresAt: &past})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.CreateLicense(ctx, actor, application.CreateLicenseInput{LicenseKeyID: "nope", ProductID: product.ID.String()})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestKeyHoldsOneOpenLicensePerProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seatedLicense(t, intPtr(1))
	_, err := f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.NoError(t, err)

	input := application.CreateLicenseInput{LicenseKeyID: s.key.ID.String(), ProductID: s.product.ID.String(), MaxSeats: intPtr(5)}
	_, err = f.svc.CreateLicense(ctx, s.actor, input)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.SuspendLicense(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	_, err = f.svc.CreateLicense(ctx, s.actor, input)
	require.ErrorIs(t, err, domain.ErrConflict, "a suspended license still holds the binding")

	// the seat stays reachable on the original license
	released, err := f.svc.Deactivate(ctx, s.actor, application.DeactivateInput{SeatRequest: s.request("site-1")})
	require.NoError(t, err)
	assert.Equal(t, s.license.ID, released.Activation.LicenseID)

	_, err = f.svc.CancelLicense(ctx, s.actor, s.license.ID.String())
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	replacement, err := f.svc.CreateLicense(ctx, s.actor, input)
	require.NoError(t, err)

	activated, err := f.svc.Activate(ctx, s.actor, s.request("site-2"))
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, activated.LicenseID)

	// the replacement now holds the binding
	_, err = f.svc.CreateLicense(ctx, s.actor, input)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestLicenseLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seatedLicense(t, intPtr(1))
	id := s.license.ID.String()

	renewed, err := f.svc.RenewLicense(ctx, s.actor, id, application.RenewLicenseInput{Days: 30})
	require.NoError(t, err)
	require.NotNil(t, renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.Equal(f.clock.Now().AddDate(0, 0, 30)))

	again, err := f.svc.RenewLicense(ctx, s.actor, id, application.RenewLicenseInput{Days: 10})
	require.NoError(t, err)
	assert.True(t, again.ExpiresAt.Equal(renewed.ExpiresAt.AddDate(0, 0, 10)), "renewal extends the current expiration")

	suspended, err := f.svc.SuspendLicense(ctx, s.actor, id)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusSuspended, suspended.Status)
	assert.False(t, suspended.IsValid)

	_, err = f.svc.RenewLicense(ctx, s.actor, id, application.RenewLicenseInput{Days: 1})
	require.NoError(t, err, "suspended licenses can be renewed")

	resumed, err := f.svc.ResumeLicense(ctx, s.actor, id)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusValid, resumed.Status)

	_, err = f.svc.ResumeLicense(ctx, s.actor, id)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	cancelled, err := f.svc.CancelLicense(ctx, s.actor, id)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusCancelled, cancelled.Status)

	_, err = f.svc.RenewLicense(ctx, s.actor, id, application.RenewLicenseInput{Days: 30})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.ResumeLicense(ctx, s.actor, id)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Activate(ctx, s.actor, s.request("site-1"))
	require.ErrorIs(t, err, domain.ErrLicenseNotUsable)

	assert.Subset(t, f.repos.Outbox.Pending(), []string{"license.renewed", "license.suspended", "license.resumed", "license.cancelled"})
}

func TestLicenseKeyStatusAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor, _ := f.brand(t, "acme")
	key := f.key(t, actor, "jane@example.com")
	plugin := f.product(t, actor, "plugin", nil)
	addon := f.product(t, actor, "addon", nil)
	f.license(t, actor, key, plugin, intPtr(5))
	f.license(t, actor, key, addon, intPtr(3))

	for _, site := range []string{"site-1", "site-2"} {
		_, err := f.svc.Activate(ctx, actor, application.SeatRequest{LicenseKey: key.Key, ProductSlug: "plugin", InstanceID: site})
		require.NoError(t, err)
	}

	status, err := f.svc.LicenseKeyStatus(ctx, actor, key.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusActive, status.Status)
	assert.Equal(t, 2, status.TotalLicenses)
	assert.Equal(t, 8, status.TotalSeats)
	assert.Equal(t, 2, status.UsedSeats)
	assert.False(t, status.HasUnlimitedSeats)
	require.Len(t, status.Entitlements, 2)
	assert.Equal(t, "addon", status.Entitlements[0].ProductSlug)

	inactive := false
	_, err = f.svc.UpdateLicenseKey(ctx, actor, key.ID.String(), application.UpdateLicenseKeyInput{Active: &inactive})
	require.NoError(t, err)
	status, err = f.svc.LicenseKeyStatus(ctx, actor, key.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusInactive, status.Status)
}

func TestCustomerLicensesAcrossBrands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme, _ := f.brand(t, "acme")
	globex, _ := f.brand(t, "globex")

	acmeKey := f.key(t, acme, "Jane@Example.com")
	f.license(t, acme, acmeKey, f.product(t, acme, "plugin", nil), intPtr(3))
	globexKey := f.key(t, globex, "jane@example.com")
	f.license(t, globex, globexKey, f.product(t, globex, "suite", nil), nil)
	other := f.key(t, globex, "john@example.com")
	f.license(t, globex, other, f.product(t, globex, "extras", nil), nil)

	all, err := f.svc.CustomerLicenses(ctx, acme, " JANE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", all.Email)
	assert.Equal(t, 2, all.BrandsCount)
	assert.Equal(t, 2, all.TotalLicenseKeys)
	assert.Equal(t, 2, all.TotalLicenses)

	scoped, err := f.svc.CustomerLicensesInBrand(ctx, acme, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, scoped.BrandsCount)
	assert.Equal(t, 1, scoped.TotalLicenseKeys)
	require.Len(t, scoped.LicenseKeys, 1)
	assert.Equal(t, acmeKey.ID, scoped.LicenseKeys[0].ID)

	_, err = f.svc.SetBrandActive(ctx, "globex", false)
	require.NoError(t, err)
	all, err = f.svc.CustomerLicenses(ctx, acme, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, all.BrandsCount)

	_, err = f.svc.CustomerLicenses(ctx, acme, "not-an-email")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIdempotentLicenseKeyCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor, _ := f.brand(t, "acme")
	actor.IdempotencyKey = "order-1001"

	first, err := f.svc.CreateLicenseKey(ctx, actor, application.CreateLicenseKeyInput{CustomerEmail: "jane@example.com"})
	require.NoError(t, err)
	second, err := f.svc.CreateLicenseKey(ctx, actor, application.CreateLicenseKeyInput{CustomerEmail: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Key, second.Key)

	_, err = f.svc.CreateLicenseKey(ctx, actor, application.CreateLicenseKeyInput{CustomerEmail: "john@example.com"})
	require.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	// keys are scoped to the brand
	globex, _ := f.brand(t, "globex")
	globex.IdempotencyKey = "order-1001"
	third, err := f.svc.CreateLicenseKey(ctx, globex, application.CreateLicenseKeyInput{CustomerEmail: "john@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor, _ := f.brand(t, "acme")
	key := f.key(t, actor, "jane@example.com")
	product := f.product(t, actor, "plugin", nil)

	actor.IdempotencyKey = "retry-me"
	input := application.CreateLicenseInput{LicenseKeyID: key.ID.String(), ProductID: "00000000-0000-0000-0000-000000000001"}
	_, err := f.svc.CreateLicense(ctx, actor, input)
	require.ErrorIs(t, err, domain.ErrNotFound)

	input.ProductID = product.ID.String()
	_, err = f.svc.CreateLicense(ctx, actor, input)
	require.NoError(t, err, "a failed request must not pin its idempotency key")
}
