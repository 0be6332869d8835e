// Package importer brings identities from other chains into the vault.
//
// No external identity provider is queried. LookupForeignIdentity derives a
// placeholder content hash from its inputs and the request time; the hash is
// not collision resistant and must not be treated as proof of anything.
package importer

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"identityvault/internal/identity/models"
	"identityvault/internal/identity/orchestrator"
	"identityvault/internal/ledger"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
	"identityvault/pkg/requestcontext"
)

// Source chains and identity types accepted for import.
var (
	SourceChains  = []string{"ethereum", "lisk", "optimism", "arbitrum", "polkadot", "moonbeam"}
	IdentityTypes = []string{"poap", "nft", "badge", "message"}
)

// StoreRunner is the orchestrator surface used to commit an import.
type StoreRunner interface {
	Store(ctx context.Context, signer ledger.Signer, intent orchestrator.StoreIntent) (*orchestrator.Result, error)
}

// PendingImport is a looked-up foreign identity waiting to be stored.
type PendingImport struct {
	SourceAddress string    `json:"sourceAddress"`
	SourceChain   string    `json:"sourceChain"`
	IdentityType  string    `json:"identityType"`
	IdentityHash  string    `json:"identityHash"`
	RequestedAt   time.Time `json:"requestedAt"`
}

// Descriptor is the simulated foreign identity returned by the HTTP import
// endpoint.
type Descriptor struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

type Reconciler struct {
	runner StoreRunner
}

func New(runner StoreRunner) *Reconciler {
	return &Reconciler{runner: runner}
}

// LookupForeignIdentity validates its inputs before doing anything else and
// returns a pending import carrying the placeholder hash.
func (r *Reconciler) LookupForeignIdentity(ctx context.Context, sourceAddress, sourceChain, identityType string) (*PendingImport, error) {
	sourceAddress = strings.TrimSpace(sourceAddress)
	sourceChain = strings.ToLower(strings.TrimSpace(sourceChain))
	identityType = strings.ToLower(strings.TrimSpace(identityType))

	if sourceAddress == "" || sourceChain == "" || identityType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Please fill in all required fields.")
	}
	if !address.IsWellFormed(sourceAddress) {
		return nil, dErrors.New(dErrors.CodeValidation, "Please enter a valid Ethereum address.")
	}
	if !slices.Contains(SourceChains, sourceChain) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "Unsupported source chain %q.", sourceChain)
	}
	if !slices.Contains(IdentityTypes, identityType) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "Unsupported identity type %q.", identityType)
	}

	now := requestcontext.Now(ctx)
	return &PendingImport{
		SourceAddress: sourceAddress,
		SourceChain:   sourceChain,
		IdentityType:  identityType,
		IdentityHash:  PlaceholderHash(sourceAddress, sourceChain, identityType, now),
		RequestedAt:   now,
	}, nil
}

// PlaceholderHash is keccak256("<address>-<chain>-<type>-<unix millis>").
func PlaceholderHash(sourceAddress, sourceChain, identityType string, at time.Time) string {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s-%s-%s-%d", sourceAddress, sourceChain, identityType, at.UnixMilli())
	return fmt.Sprintf("0x%x", h.Sum(nil))
}

// Import stores pending on chain as the signer's identity.
func (r *Reconciler) Import(ctx context.Context, signer ledger.Signer, pending *PendingImport) (*orchestrator.Result, error) {
	if pending == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "nothing to import")
	}
	return r.runner.Store(ctx, signer, orchestrator.StoreIntent{
		Address:      address.FromCommon(signer.From),
		IdentityHash: pending.IdentityHash,
		SourceChain:  pending.SourceChain,
		ImportedFrom: &models.ImportedFrom{
			SourceChain:   pending.SourceChain,
			SourceAddress: pending.SourceAddress,
			IdentityType:  pending.IdentityType,
		},
	})
}

// Describe returns the simulated descriptor for a foreign identity.
func Describe(sourceChain, sourceAddress, identityType string) (*Descriptor, error) {
	if strings.TrimSpace(sourceChain) == "" || strings.TrimSpace(sourceAddress) == "" || strings.TrimSpace(identityType) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "sourceChain, sourceAddress, and identityType are required")
	}
	return &Descriptor{
		Type:   identityType,
		Name:   sourceChain + " " + identityType,
		Source: sourceChain,
	}, nil
}
