package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0x1234567890abcdef1234567890abcdef12345678"

func TestNewRecord_BackfillsDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := NewRecord(addr, IdentityPatch{IdentityHash: Ptr("0xabc")}, now)

	assert.Equal(t, addr, rec.Address)
	assert.Equal(t, DefaultName, rec.Name)
	assert.Equal(t, DefaultReputation, rec.Reputation)
	assert.Equal(t, now, rec.FirstActive)
	require.Len(t, rec.Badges, 3)
	assert.Equal(t, "verified", rec.Badges[0].ID)
	assert.True(t, rec.IsActive)
}

func TestNewRecord_EmptyHashIsInactive(t *testing.T) {
	rec := NewRecord(addr, IdentityPatch{Name: Ptr("Alice")}, time.Now())
	assert.False(t, rec.IsActive)
	assert.Equal(t, "Alice", rec.Name)
}

func TestMerge(t *testing.T) {
	base := NewRecord(addr, IdentityPatch{IdentityHash: Ptr("0xabc"), IsShared: Ptr(true)}, time.Now())

	t.Run("shallow merge keeps unset fields", func(t *testing.T) {
		out := base.Merge(IdentityPatch{Reputation: Ptr(900)})
		assert.Equal(t, 900, out.Reputation)
		assert.Equal(t, DefaultName, out.Name)
		assert.Equal(t, "0xabc", out.IdentityHash)
		assert.Equal(t, DefaultReputation, base.Reputation, "original must not be mutated")
	})

	t.Run("patch address is ignored", func(t *testing.T) {
		out := base.Merge(IdentityPatch{Address: "0xffffffffffffffffffffffffffffffffffffffff"})
		assert.Equal(t, addr, out.Address)
	})

	t.Run("share flag cannot be cleared without a new hash", func(t *testing.T) {
		out := base.Merge(IdentityPatch{IsShared: Ptr(false)})
		assert.True(t, out.IsShared)
	})

	t.Run("a new hash may clear the share flag", func(t *testing.T) {
		out := base.Merge(IdentityPatch{IdentityHash: Ptr("0xdef"), IsShared: Ptr(false)})
		assert.False(t, out.IsShared)
		assert.True(t, out.IsActive)
	})

	t.Run("a confirmed ledger view may clear the share flag for the same hash", func(t *testing.T) {
		out := base.Merge(IdentityPatch{IdentityHash: Ptr("0xabc"), IsShared: Ptr(false), FromLedger: true})
		assert.False(t, out.IsShared)
		assert.Equal(t, "0xabc", out.IdentityHash)
	})

	t.Run("clearing the hash deactivates", func(t *testing.T) {
		out := base.Merge(IdentityPatch{IdentityHash: Ptr("")})
		assert.False(t, out.IsActive)
	})
}

func TestClone_DoesNotAlias(t *testing.T) {
	rec := NewRecord(addr, IdentityPatch{ImportedFrom: &ImportedFrom{SourceChain: "lisk"}}, time.Now())
	cp := rec.Clone()
	cp.Badges[0].Name = "changed"
	cp.ImportedFrom.SourceChain = "ethereum"

	assert.Equal(t, "Verified User", rec.Badges[0].Name)
	assert.Equal(t, "lisk", rec.ImportedFrom.SourceChain)
}

func TestLedgerIdentity_Empty(t *testing.T) {
	var nilView *LedgerIdentity
	assert.True(t, nilView.Empty())
	assert.True(t, (&LedgerIdentity{Address: addr}).Empty())
	assert.False(t, (&LedgerIdentity{Address: addr, IdentityHash: "0x1"}).Empty())
}
