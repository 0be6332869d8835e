// Package store persists identity records keyed by normalized address.
package store

import (
	"context"

	"identityvault/internal/identity/models"
	dErrors "identityvault/pkg/domain-errors"
	"identityvault/pkg/platform/sentinel"
)

// Store is the application-side identity record store.
//
// Implementations normalize the address argument themselves, derive IsActive
// from the identity hash on every write, and make each write atomic per
// address.
type Store interface {
	// Get returns (nil, false, nil) when no record exists.
	Get(ctx context.Context, address string) (*models.IdentityRecord, bool, error)
	// Create fails with a conflict when a record already exists.
	Create(ctx context.Context, patch models.IdentityPatch) (*models.IdentityRecord, error)
	// Update fails with not found when no record exists.
	Update(ctx context.Context, address string, patch models.IdentityPatch) (*models.IdentityRecord, error)
	// Upsert creates or merges in one atomic step. created reports which.
	Upsert(ctx context.Context, address string, patch models.IdentityPatch) (rec *models.IdentityRecord, created bool, err error)
}

func errDuplicate(address string) error {
	return dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "identity already exists for "+address)
}

func errMissing(address string) error {
	return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "identity not found for "+address)
}
