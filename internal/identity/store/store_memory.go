package store

import (
	"context"
	"sync"

	"identityvault/internal/identity/models"
	"identityvault/pkg/address"
	"identityvault/pkg/requestcontext"
)

// InMemoryStore keeps identity records in a map guarded by one RWMutex. Writes
// hold the lock across read-merge-write.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*models.IdentityRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[string]*models.IdentityRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, addr string) (*models.IdentityRecord, bool, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.identities[key]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *InMemoryStore) Create(ctx context.Context, patch models.IdentityPatch) (*models.IdentityRecord, error) {
	key, err := address.Normalize(patch.Address)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[key]; ok {
		return nil, errDuplicate(key)
	}
	rec := models.NewRecord(key, patch, requestcontext.Now(ctx))
	s.identities[key] = rec
	return rec.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, addr string, patch models.IdentityPatch) (*models.IdentityRecord, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.identities[key]
	if !ok {
		return nil, errMissing(key)
	}
	rec := existing.Merge(patch)
	s.identities[key] = rec
	return rec.Clone(), nil
}

func (s *InMemoryStore) Upsert(ctx context.Context, addr string, patch models.IdentityPatch) (*models.IdentityRecord, bool, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.identities[key]; ok {
		rec := existing.Merge(patch)
		s.identities[key] = rec
		return rec.Clone(), false, nil
	}
	rec := models.NewRecord(key, patch, requestcontext.Now(ctx))
	s.identities[key] = rec
	return rec.Clone(), true, nil
}
