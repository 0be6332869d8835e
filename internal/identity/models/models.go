// Package models holds the identity record shape shared by the store, the
// orchestrator and the HTTP transport.
package models

import (
	"time"
)

// Defaults backfilled on create when the caller leaves the field unset.
const (
	DefaultName       = "CryptoExplorer"
	DefaultReputation = 785
)

// Badge is a display-only achievement attached to an identity.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Network     string `json:"network"`
	Icon        string `json:"icon"`
	IconBgColor string `json:"iconBgColor"`
	IconColor   string `json:"iconColor"`
}

// ImportedFrom records the foreign origin of an imported identity.
type ImportedFrom struct {
	SourceChain   string `json:"sourceChain"`
	SourceAddress string `json:"sourceAddress"`
	IdentityType  string `json:"identityType"`
}

// IdentityRecord is the application-side view of an address's identity.
// Address is always normalized. IsActive is derived from IdentityHash on
// every write.
type IdentityRecord struct {
	Address         string        `json:"address"`
	IdentityHash    string        `json:"hash"`
	Name            string        `json:"name"`
	Reputation      int           `json:"reputation"`
	FirstActive     time.Time     `json:"firstActive"`
	Badges          []Badge       `json:"badges"`
	ImportedFrom    *ImportedFrom `json:"importedFrom,omitempty"`
	SourceChain     string        `json:"sourceChain,omitempty"`
	IsActive        bool          `json:"isActive"`
	IsShared        bool          `json:"isShared"`
	LastConfirmedAt *time.Time    `json:"lastConfirmedAt,omitempty"`
}

// Clone returns a deep copy so callers never alias stored state.
func (r *IdentityRecord) Clone() *IdentityRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Badges != nil {
		out.Badges = append([]Badge(nil), r.Badges...)
	}
	if r.ImportedFrom != nil {
		imp := *r.ImportedFrom
		out.ImportedFrom = &imp
	}
	if r.LastConfirmedAt != nil {
		ts := *r.LastConfirmedAt
		out.LastConfirmedAt = &ts
	}
	return &out
}

// IdentityPatch is a partial record. Nil fields are left untouched on update.
type IdentityPatch struct {
	Address         string        `json:"address"`
	IdentityHash    *string       `json:"hash,omitempty"`
	Name            *string       `json:"name,omitempty"`
	Reputation      *int          `json:"reputation,omitempty"`
	FirstActive     *time.Time    `json:"firstActive,omitempty"`
	Badges          []Badge       `json:"badges,omitempty"`
	ImportedFrom    *ImportedFrom `json:"importedFrom,omitempty"`
	SourceChain     *string       `json:"sourceChain,omitempty"`
	IsShared        *bool         `json:"isShared,omitempty"`
	LastConfirmedAt *time.Time    `json:"lastConfirmedAt,omitempty"`

	// FromLedger marks a patch built from a confirmed ledger view. Its share
	// flag replaces the stored one unconditionally.
	FromLedger bool `json:"-"`
}

// DefaultBadges returns a fresh copy of the badge set given to new identities.
func DefaultBadges() []Badge {
	return []Badge{
		{ID: "verified", Name: "Verified User", Network: "Moonbeam", Icon: "bx-badge-check", IconBgColor: "bg-primary bg-opacity-20", IconColor: "text-primary"},
		{ID: "staker", Name: "Staker", Network: "Polkadot", Icon: "bx-coin-stack", IconBgColor: "bg-secondary bg-opacity-20", IconColor: "text-secondary"},
		{ID: "nft-creator", Name: "NFT Creator", Network: "Ethereum", Icon: "bx-box", IconBgColor: "bg-accent1 bg-opacity-20", IconColor: "text-accent1"},
	}
}

// NewRecord applies patch on top of the create-time defaults. address must
// already be normalized.
func NewRecord(address string, patch IdentityPatch, now time.Time) *IdentityRecord {
	rec := &IdentityRecord{
		Address:     address,
		Name:        DefaultName,
		Reputation:  DefaultReputation,
		FirstActive: now,
		Badges:      DefaultBadges(),
	}
	rec.apply(patch)
	rec.IsActive = rec.IdentityHash != ""
	return rec
}

// Merge returns a copy of r with patch shallow-merged on top. The key address
// wins over patch.Address. A share flag that is already set survives unless
// the patch also carries a different identity hash or comes from the ledger.
func (r *IdentityRecord) Merge(patch IdentityPatch) *IdentityRecord {
	out := r.Clone()
	wasShared := out.IsShared
	prevHash := out.IdentityHash
	out.apply(patch)
	if wasShared && !out.IsShared && out.IdentityHash == prevHash && !patch.FromLedger {
		out.IsShared = true
	}
	out.IsActive = out.IdentityHash != ""
	return out
}

func (r *IdentityRecord) apply(p IdentityPatch) {
	if p.IdentityHash != nil {
		r.IdentityHash = *p.IdentityHash
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Reputation != nil {
		r.Reputation = *p.Reputation
	}
	if p.FirstActive != nil {
		r.FirstActive = *p.FirstActive
	}
	if p.Badges != nil {
		r.Badges = append([]Badge(nil), p.Badges...)
	}
	if p.ImportedFrom != nil {
		imp := *p.ImportedFrom
		r.ImportedFrom = &imp
	}
	if p.SourceChain != nil {
		r.SourceChain = *p.SourceChain
	}
	if p.IsShared != nil {
		r.IsShared = *p.IsShared
	}
	if p.LastConfirmedAt != nil {
		ts := *p.LastConfirmedAt
		r.LastConfirmedAt = &ts
	}
}

// LedgerIdentity is the decoded on-chain view of an address.
type LedgerIdentity struct {
	Address      string    `json:"address"`
	IdentityHash string    `json:"identityHash"`
	SourceChain  string    `json:"sourceChain"`
	Timestamp    time.Time `json:"timestamp"`
	IsActive     bool      `json:"isActive"`
	IsShared     bool      `json:"isShared"`
}

// Empty reports the "no identity" sentinel the contract returns for unknown
// addresses.
func (l *LedgerIdentity) Empty() bool {
	return l == nil || l.IdentityHash == ""
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}
