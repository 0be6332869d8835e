package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and ledger adapters
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// - ErrNotFound: entity does not exist in store or cache
// - ErrConflict: unique key already taken
// - ErrUnavailable: backend temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
