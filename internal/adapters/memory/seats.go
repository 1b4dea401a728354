package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type SeatLedger struct {
	store *Store
}

func (l *SeatLedger) WithLicenseLock(ctx context.Context, brandID, licenseID uuid.UUID, fn func(ctx context.Context, tx ports.SeatLedgerTx) error) error {
	lock := l.store.licenseLock(licenseID)
	lock.Lock()
	defer lock.Unlock()

	l.store.mu.RLock()
	license, err := l.store.licenseOwnedLocked(brandID, licenseID)
	l.store.mu.RUnlock()
	if err != nil {
		return err
	}
	tx := &seatTx{store: l.store, license: license, pending: map[uuid.UUID]domain.Activation{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (l *SeatLedger) ListByLicense(_ context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return l.store.activationsLocked(licenseID, false), nil
}

func (l *SeatLedger) ListActive(_ context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return l.store.activationsLocked(licenseID, true), nil
}

func (l *SeatLedger) Touch(_ context.Context, activationID uuid.UUID, at time.Time) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	a, ok := l.store.activations[activationID]
	if !ok {
		return domain.ErrActivationNotFound
	}
	a.LastSeenAt = at
	a.UpdatedAt = at
	l.store.activations[activationID] = a
	return nil
}

func (l *SeatLedger) ExpireLapsed(_ context.Context, cutoff, now time.Time, limit int) ([]domain.Activation, error) {
	l.store.mu.RLock()
	lapsed := make([]uuid.UUID, 0)
	for id, license := range l.store.licenses {
		if license.ExpiresAt != nil && license.ExpiresAt.Before(cutoff) {
			lapsed = append(lapsed, id)
		}
	}
	l.store.mu.RUnlock()

	released := make([]domain.Activation, 0)
	for _, licenseID := range lapsed {
		if limit > 0 && len(released) >= limit {
			break
		}
		lock := l.store.licenseLock(licenseID)
		lock.Lock()
		l.store.mu.Lock()
		license := l.store.licenses[licenseID]
		// renewed while we were collecting
		if license.ExpiresAt == nil || !license.ExpiresAt.Before(cutoff) {
			l.store.mu.Unlock()
			lock.Unlock()
			continue
		}
		brandID := l.store.keys[license.LicenseKeyID].BrandID
		active := l.store.activationsLocked(licenseID, true)
		remaining := len(active)
		for _, a := range active {
			if limit > 0 && len(released) >= limit {
				break
			}
			a.Release(domain.ActivationStatusExpired, "license expired", now)
			l.store.activations[a.ID] = a
			l.store.audit = append(l.store.audit, domain.ExpiryAudit(brandID, a, remaining, now))
			remaining--
			released = append(released, a)
		}
		l.store.mu.Unlock()
		lock.Unlock()
	}
	return released, nil
}

func (s *Store) activationsLocked(licenseID uuid.UUID, activeOnly bool) []domain.Activation {
	out := make([]domain.Activation, 0)
	for _, a := range s.activations {
		if a.LicenseID != licenseID || (activeOnly && !a.IsActive()) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivatedAt.Before(out[j].ActivatedAt) })
	return out
}

// seatTx stages writes and applies them on commit, so a failing callback
// leaves the store untouched.
type seatTx struct {
	store   *Store
	license domain.License
	pending map[uuid.UUID]domain.Activation
	audit   []domain.AuditRecord
}

func (t *seatTx) License() domain.License { return t.license }

func (t *seatTx) rows() []domain.Activation {
	t.store.mu.RLock()
	rows := t.store.activationsLocked(t.license.ID, false)
	t.store.mu.RUnlock()
	seen := map[uuid.UUID]bool{}
	for i, row := range rows {
		if staged, ok := t.pending[row.ID]; ok {
			rows[i] = staged
			seen[row.ID] = true
		}
	}
	for id, staged := range t.pending {
		if !seen[id] {
			rows = append(rows, staged)
		}
	}
	return rows
}

func (t *seatTx) CountActive(_ context.Context) (int, error) {
	n := 0
	for _, a := range t.rows() {
		if a.IsActive() {
			n++
		}
	}
	return n, nil
}

func (t *seatTx) FindByIdentity(_ context.Context, identity domain.InstanceIdentity) ([]domain.Activation, error) {
	out := make([]domain.Activation, 0)
	for _, a := range t.rows() {
		if identity.Matches(a.InstanceIdentity) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *seatTx) ListActive(_ context.Context) ([]domain.Activation, error) {
	out := make([]domain.Activation, 0)
	for _, a := range t.rows() {
		if a.IsActive() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *seatTx) Insert(_ context.Context, activation domain.Activation) error {
	for _, a := range t.rows() {
		if sameIdentityTuple(a.InstanceIdentity, activation.InstanceIdentity) {
			return domain.ErrAlreadyActivated
		}
	}
	t.pending[activation.ID] = activation
	return nil
}

func (t *seatTx) Save(_ context.Context, activation domain.Activation) error {
	if activation.LicenseID != t.license.ID {
		return domain.ErrActivationNotFound
	}
	t.pending[activation.ID] = activation
	return nil
}

func (t *seatTx) AppendAudit(_ context.Context, record domain.AuditRecord) error {
	t.audit = append(t.audit, record)
	return nil
}

func (t *seatTx) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, a := range t.pending {
		t.store.activations[id] = a
	}
	t.store.audit = append(t.store.audit, t.audit...)
	return nil
}

func sameIdentityTuple(a, b domain.InstanceIdentity) bool {
	return a.InstanceID == b.InstanceID && a.InstanceURL == b.InstanceURL && a.MachineID == b.MachineID
}
