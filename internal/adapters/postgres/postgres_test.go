package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

var licenseColumns = []string{"license_id", "license_key_id", "product_id", "status", "expires_at", "max_seats", "created_at", "updated_at"}

func TestBrandGetBySlugNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)

	mock.ExpectQuery(`SELECT \* FROM "brands" WHERE slug = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"brand_id"}))

	_, err := repos.Brands.GetBySlug(context.Background(), "acme")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrandCreateDuplicateIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "brands"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repos.Brands.Create(context.Background(), domain.Brand{ID: uuid.New(), Name: "Acme", Slug: "acme", APIKeyID: "lk_1", APIKeyHash: "x", Active: true})
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedgerLocksLicenseRow(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	brandID, licenseID, keyID, productID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT licenses\.\* FROM "licenses" JOIN license_keys .* FOR UPDATE OF "licenses"`).
		WithArgs(licenseID, brandID, 1).
		WillReturnRows(sqlmock.NewRows(licenseColumns).
			AddRow(licenseID, keyID, productID, "valid", nil, 3, now, now))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "activations" WHERE license_id = \$1 AND status = \$2`).
		WithArgs(licenseID, "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	var used int
	err := repos.Seats.WithLicenseLock(context.Background(), brandID, licenseID, func(ctx context.Context, tx ports.SeatLedgerTx) error {
		license := tx.License()
		assert.Equal(t, domain.LicenseStatusValid, license.Status)
		require.NotNil(t, license.MaxSeats)
		assert.Equal(t, 3, *license.MaxSeats)
		var err error
		used, err = tx.CountActive(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, used)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedgerRollsBackOnCallbackError(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	brandID, licenseID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF "licenses"`).
		WillReturnRows(sqlmock.NewRows(licenseColumns).
			AddRow(licenseID, uuid.New(), uuid.New(), "valid", nil, 1, now, now))
	mock.ExpectRollback()

	err := repos.Seats.WithLicenseLock(context.Background(), brandID, licenseID, func(context.Context, ports.SeatLedgerTx) error {
		return domain.ErrNoAvailableSeats
	})
	require.ErrorIs(t, err, domain.ErrNoAvailableSeats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedgerForeignLicenseIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF "licenses"`).
		WillReturnRows(sqlmock.NewRows(licenseColumns))
	mock.ExpectRollback()

	called := false
	err := repos.Seats.WithLicenseLock(context.Background(), uuid.New(), uuid.New(), func(context.Context, ports.SeatLedgerTx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatInsertDuplicateIdentityIsAlreadyActivated(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	brandID, licenseID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF "licenses"`).
		WillReturnRows(sqlmock.NewRows(licenseColumns).
			AddRow(licenseID, uuid.New(), uuid.New(), "valid", nil, nil, now, now))
	mock.ExpectExec(`INSERT INTO "activations"`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := repos.Seats.WithLicenseLock(context.Background(), brandID, licenseID, func(ctx context.Context, tx ports.SeatLedgerTx) error {
		return tx.Insert(ctx, domain.NewActivation(licenseID, domain.InstanceIdentity{InstanceID: "site-1"}, now))
	})
	require.ErrorIs(t, err, domain.ErrAlreadyActivated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLicenseCreateSecondOpenLicenseIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "licenses"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_licenses_key_product_open"})
	mock.ExpectRollback()

	err := repos.Licenses.Create(context.Background(), domain.License{
		ID: uuid.New(), LicenseKeyID: uuid.New(), ProductID: uuid.New(),
		Status: domain.LicenseStatusValid, CreatedAt: now, UpdatedAt: now,
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByKeyAndProductPrefersOpenLicense(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	brandID, keyID, productID, licenseID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT licenses\.\* FROM "licenses" JOIN license_keys .* ORDER BY licenses\.status = 'cancelled',licenses\.created_at DESC`).
		WithArgs(keyID, productID, brandID, 1).
		WillReturnRows(sqlmock.NewRows(licenseColumns).
			AddRow(licenseID, keyID, productID, "suspended", nil, 1, now, now))

	license, err := repos.Licenses.GetByKeyAndProduct(context.Background(), brandID, keyID, productID)
	require.NoError(t, err)
	assert.Equal(t, licenseID, license.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireLapsedSkipsLockedLicensesAndAudits(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	brandID, licenseID, activationID := uuid.New(), uuid.New(), uuid.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT licenses\.license_id, license_keys\.brand_id FROM "licenses" JOIN license_keys .* FOR UPDATE OF "licenses" SKIP LOCKED`).
		WithArgs(cutoff, "active", 10).
		WillReturnRows(sqlmock.NewRows([]string{"license_id", "brand_id"}).AddRow(licenseID, brandID))
	mock.ExpectQuery(`SELECT license_id, COUNT\(\*\) AS seats FROM "activations"`).
		WillReturnRows(sqlmock.NewRows([]string{"license_id", "seats"}).AddRow(licenseID, 1))
	mock.ExpectQuery(`SELECT \* FROM "activations" WHERE license_id IN \(\$1\) AND status = \$2`).
		WithArgs(licenseID, "active", 10).
		WillReturnRows(sqlmock.NewRows([]string{"activation_id", "license_id", "instance_id", "status", "activated_at", "last_seen_at"}).
			AddRow(activationID, licenseID, "site-1", "active", now.Add(-72*time.Hour), now.Add(-48*time.Hour)))
	mock.ExpectExec(`UPDATE "activations" SET .* WHERE activation_id = \$\d+ AND license_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "activation_audit"`).
		WithArgs(sqlmock.AnyArg(), brandID, licenseID, "expire", "site-1", "", "", "", 1, 0, "license expired", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	released, err := repos.Seats.ExpireLapsed(context.Background(), cutoff, now, 10)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, activationID, released[0].ID)
	assert.Equal(t, domain.ActivationStatusExpired, released[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireLapsedNothingToRelease(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF "licenses" SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"license_id", "brand_id"}))
	mock.ExpectCommit()

	released, err := repos.Seats.ExpireLapsed(context.Background(), now, now, 10)
	require.NoError(t, err)
	assert.Empty(t, released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxClaimSkipsLockedRows(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	outboxID := uuid.New()
	token := "worker-1"
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "license_outbox" SET .* FOR UPDATE SKIP LOCKED`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "license_outbox" WHERE claim_token = \$1`).
		WithArgs(token).
		WillReturnRows(sqlmock.NewRows([]string{"outbox_id", "event_type", "partition_key", "payload", "created_at", "retry_count", "claim_token"}).
			AddRow(outboxID, "license.created", "lic-1", `{"event_type":"license.created"}`, now, 0, token))
	mock.ExpectCommit()

	rows, err := repos.Outbox.ClaimUnpublished(context.Background(), 10, token, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, outboxID, rows[0].OutboxID)
	assert.Equal(t, "license.created", rows[0].EventType)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = repos.Outbox.ClaimUnpublished(context.Background(), 10, "", now)
	require.Error(t, err)
}

func TestIdempotencyGetPurgesExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "license_idempotency" WHERE idempotency_key = \$1`).
		WithArgs("brand:key", 1).
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key", "request_hash", "status", "response_code", "expires_at"}).
			AddRow("brand:key", "h", "completed", 201, now.Add(-time.Hour)))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "license_idempotency"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := repos.Idempotency.Get(context.Background(), "brand:key", now)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotFoundMapping(t *testing.T) {
	assert.ErrorIs(t, notFound(gorm.ErrRecordNotFound), domain.ErrNotFound)
	other := errors.New("boom")
	assert.Equal(t, other, notFound(other))
}
