package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/cache"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) *application.Service {
	t.Helper()
	signer, err := security.NewEphemeralJWTSigner("test", "m91-test")
	require.NoError(t, err)
	repos := memory.NewRepositories()
	return application.NewService(application.Dependencies{
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
	})
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBrandCommands(t *testing.T) {
	svc := newService(t)
	opened := 0
	open := func(context.Context, string) (*Env, error) {
		opened++
		return &Env{Admin: svc}, nil
	}

	out, err := run(t, open, "brand", "create", "acme", "--name", "Acme Corp", "-o", "json")
	require.NoError(t, err)
	var creds application.BrandCredentials
	require.NoError(t, json.Unmarshal([]byte(out), &creds))
	assert.Equal(t, "acme", creds.Brand.Slug)
	assert.NotEmpty(t, creds.APIKey)

	out, err = run(t, open, "brand", "rotate-key", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "api_key")
	assert.NotContains(t, out, creds.APIKey)

	_, err = svc.AuthenticateAPIKey(context.Background(), creds.APIKey)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = run(t, open, "brand", "disable", "acme")
	require.NoError(t, err)
	out, err = run(t, open, "brand", "list", "-o", "json")
	require.NoError(t, err)
	var brands []domain.Brand
	require.NoError(t, json.Unmarshal([]byte(out), &brands))
	require.Len(t, brands, 1)
	assert.False(t, brands[0].Active)

	_, err = run(t, open, "brand", "create", "acme")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 5, opened)
}

func TestMigrateCommand(t *testing.T) {
	closed := false
	open := func(context.Context, string) (*Env, error) {
		return &Env{
			Migrate: func(context.Context) ([]string, error) { return []string{"0001_init.sql"}, nil },
			Close:   func() { closed = true },
		}, nil
	}
	out, err := run(t, open, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "0001_init.sql")
	assert.True(t, closed)
}

func TestRootCommandErrors(t *testing.T) {
	failing := func(context.Context, string) (*Env, error) { return nil, errors.New("no database") }

	_, err := run(t, failing, "brand", "list")
	require.ErrorContains(t, err, "no database")

	_, err = run(t, failing, "brand", "list", "-o", "yaml")
	require.ErrorContains(t, err, "unsupported output format")

	_, err = run(t, failing, "brand", "create")
	require.Error(t, err)
}
