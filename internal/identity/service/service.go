// Package service implements the secondary identity store API: lookups and
// create-or-update of application-side records.
package service

import (
	"context"
	"crypto/rand"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"identityvault/internal/identity/models"
	"identityvault/internal/identity/store"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
)

type Service struct {
	store   store.Store
	logger  *slog.Logger
	newHash func() (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHashGenerator replaces the random hash used for records created without one.
func WithHashGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.newHash = fn
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		logger:  slog.Default(),
		newHash: RandomHash,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomHash returns 32 random bytes as 0x-prefixed lowercase hex.
func RandomHash() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return common.BytesToHash(b[:]).Hex(), nil
}

// Get returns the record for addr or a not-found error.
func (s *Service) Get(ctx context.Context, addr string) (*models.IdentityRecord, error) {
	rec, ok, err := s.store.Get(ctx, addr)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidAddress) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "Identity not found")
	}
	return rec, nil
}

// Save merges patch into an existing record or creates one with defaults.
// created reports which happened.
func (s *Service) Save(ctx context.Context, patch models.IdentityPatch) (*models.IdentityRecord, bool, error) {
	key, err := address.Normalize(patch.Address)
	if err != nil {
		return nil, false, err
	}
	patch.Address = key

	_, exists, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	if exists {
		rec, err := s.update(ctx, key, patch)
		return rec, false, err
	}

	if patch.IdentityHash == nil || *patch.IdentityHash == "" {
		hash, err := s.newHash()
		if err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate identity hash")
		}
		patch.IdentityHash = &hash
	}
	rec, err := s.store.Create(ctx, patch)
	if err == nil {
		s.logger.InfoContext(ctx, "identity created", "address", key)
		return rec, true, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeConflict) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
	}
	// Lost a create race; fall back to merging.
	rec, err = s.update(ctx, key, patch)
	return rec, false, err
}

func (s *Service) update(ctx context.Context, key string, patch models.IdentityPatch) (*models.IdentityRecord, error) {
	rec, err := s.store.Update(ctx, key, patch)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.Is(err, dErrors.CodeInvalidAddress) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update identity")
	}
	s.logger.InfoContext(ctx, "identity updated", "address", key)
	return rec, nil
}
