package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/cache"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *application.Service
	repos *memory.Repositories
	clock *testClock
}

func newFixture(t *testing.T, opts ...func(*application.Dependencies)) *fixture {
	t.Helper()
	signer, err := security.NewEphemeralJWTSigner("test", "m91-test")
	require.NoError(t, err)
	repos := memory.NewRepositories()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	deps := application.Dependencies{
		Config: application.Config{
			ActivationGracePeriod: 24 * time.Hour,
		},
		Brands:      repos.Brands,
		Products:    repos.Products,
		LicenseKeys: repos.LicenseKeys,
		Licenses:    repos.Licenses,
		Seats:       repos.Seats,
		Customers:   repos.Customers,
		Outbox:      repos.Outbox,
		Idempotency: repos.Idempotency,
		Cache:       cache.NewLocalCache(),
		Hasher:      security.NewBcryptHasher(bcrypt.MinCost),
		Signer:      signer,
		Tokens:      security.NewTokenGenerator(),
		Clock:       clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &fixture{svc: application.NewService(deps), repos: repos, clock: clock}
}

func intPtr(v int) *int { return &v }

// brand creates a tenant and authenticates as it.
func (f *fixture) brand(t *testing.T, slug string) (application.Actor, application.BrandCredentials) {
	t.Helper()
	creds, err := f.svc.CreateBrand(context.Background(), application.CreateBrandInput{Name: slug, Slug: slug})
	require.NoError(t, err)
	actor, err := f.svc.AuthenticateAPIKey(context.Background(), creds.APIKey)
	require.NoError(t, err)
	return actor, creds
}

func (f *fixture) product(t *testing.T, actor application.Actor, slug string, maxSeats *int) domain.Product {
	t.Helper()
	product, err := f.svc.CreateProduct(context.Background(), actor, application.CreateProductInput{Name: slug, Slug: slug, MaxSeats: maxSeats})
	require.NoError(t, err)
	return product
}

func (f *fixture) key(t *testing.T, actor application.Actor, email string) domain.LicenseKey {
	t.Helper()
	key, err := f.svc.CreateLicenseKey(context.Background(), actor, application.CreateLicenseKeyInput{CustomerEmail: email})
	require.NoError(t, err)
	return key
}

func (f *fixture) license(t *testing.T, actor application.Actor, key domain.LicenseKey, product domain.Product, maxSeats *int) application.LicenseView {
	t.Helper()
	license, err := f.svc.CreateLicense(context.Background(), actor, application.CreateLicenseInput{
		LicenseKeyID: key.ID.String(),
		ProductID:    product.ID.String(),
		MaxSeats:     maxSeats,
	})
	require.NoError(t, err)
	return license
}

type seated struct {
	actor   application.Actor
	key     domain.LicenseKey
	product domain.Product
	license application.LicenseView
}

// seatedLicense provisions a brand, product, key and license with the cap.
func (f *fixture) seatedLicense(t *testing.T, maxSeats *int) seated {
	t.Helper()
	actor, _ := f.brand(t, "acme")
	product := f.product(t, actor, "plugin", nil)
	key := f.key(t, actor, "jane@example.com")
	license := f.license(t, actor, key, product, maxSeats)
	return seated{actor: actor, key: key, product: product, license: license}
}

func (s seated) request(instanceID string) application.SeatRequest {
	return application.SeatRequest{LicenseKey: s.key.Key, ProductSlug: s.product.Slug, InstanceID: instanceID}
}
