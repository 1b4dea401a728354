// Package memory is a process-local implementation of the repository ports.
// It backs tests and single-node local runs; seat mutations are serialized
// per license the same way the postgres adapter does with row locks.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type Store struct {
	mu          sync.RWMutex
	brands      map[uuid.UUID]domain.Brand
	products    map[uuid.UUID]domain.Product
	keys        map[uuid.UUID]domain.LicenseKey
	licenses    map[uuid.UUID]domain.License
	activations map[uuid.UUID]domain.Activation
	audit       []domain.AuditRecord
	outbox      []outboxRow
	idempotency map[string]ports.IdempotencyRecord

	locksMu      sync.Mutex
	licenseLocks map[uuid.UUID]*sync.Mutex
}

type outboxRow struct {
	record       ports.OutboxRecord
	publishedAt  *time.Time
	deadLettered bool
}

func NewStore() *Store {
	return &Store{
		brands:       map[uuid.UUID]domain.Brand{},
		products:     map[uuid.UUID]domain.Product{},
		keys:         map[uuid.UUID]domain.LicenseKey{},
		licenses:     map[uuid.UUID]domain.License{},
		activations:  map[uuid.UUID]domain.Activation{},
		idempotency:  map[string]ports.IdempotencyRecord{},
		licenseLocks: map[uuid.UUID]*sync.Mutex{},
	}
}

func (s *Store) licenseLock(licenseID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.licenseLocks[licenseID]
	if !ok {
		m = &sync.Mutex{}
		s.licenseLocks[licenseID] = m
	}
	return m
}

// AuditTrail returns a copy of the recorded seat audit records.
func (s *Store) AuditTrail() []domain.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditRecord, len(s.audit))
	copy(out, s.audit)
	return out
}

type Repositories struct {
	Brands      *BrandRepository
	Products    *ProductRepository
	LicenseKeys *LicenseKeyRepository
	Licenses    *LicenseRepository
	Seats       *SeatLedger
	Customers   *CustomerReadRepository
	Outbox      *OutboxRepository
	Idempotency *IdempotencyRepository
	Store       *Store
}

func NewRepositories() *Repositories {
	store := NewStore()
	return &Repositories{
		Brands:      &BrandRepository{store: store},
		Products:    &ProductRepository{store: store},
		LicenseKeys: &LicenseKeyRepository{store: store},
		Licenses:    &LicenseRepository{store: store},
		Seats:       &SeatLedger{store: store},
		Customers:   &CustomerReadRepository{store: store},
		Outbox:      &OutboxRepository{store: store},
		Idempotency: &IdempotencyRepository{store: store},
		Store:       store,
	}
}

// licenseOwnedLocked resolves a license through its key. Callers hold s.mu.
func (s *Store) licenseOwnedLocked(brandID, licenseID uuid.UUID) (domain.License, error) {
	license, ok := s.licenses[licenseID]
	if !ok {
		return domain.License{}, domain.ErrNotFound
	}
	key, ok := s.keys[license.LicenseKeyID]
	if !ok || key.BrandID != brandID {
		return domain.License{}, domain.ErrNotFound
	}
	return license, nil
}

func (s *Store) activeCountLocked(licenseID uuid.UUID) int {
	n := 0
	for _, a := range s.activations {
		if a.LicenseID == licenseID && a.IsActive() {
			n++
		}
	}
	return n
}
