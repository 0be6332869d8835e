package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"identityvault/internal/identity/models"
	dErrors "identityvault/pkg/domain-errors"
	"identityvault/pkg/platform/sentinel"
	"identityvault/pkg/requestcontext"
)

const (
	mixedCaseAddr = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	lowerAddr     = "0xabcdef0123456789abcdef0123456789abcdef01"
)

// StoreSuite runs the same behavioural checks against any Store. The
// integration build reuses it for Postgres.
type StoreSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
	now      time.Time
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() Store { return NewInMemoryStore() }})
}

func (s *StoreSuite) TestGetAbsent() {
	rec, ok, err := s.store.Get(s.ctx, lowerAddr)
	s.Require().NoError(err)
	s.False(ok)
	s.Nil(rec)
}

func (s *StoreSuite) TestGetInvalidAddress() {
	_, _, err := s.store.Get(s.ctx, "0x123")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidAddress))
}

func (s *StoreSuite) TestCreateBackfillsAndNormalizes() {
	rec, err := s.store.Create(s.ctx, models.IdentityPatch{Address: mixedCaseAddr, IdentityHash: models.Ptr("0xfeed")})
	s.Require().NoError(err)

	s.Equal(lowerAddr, rec.Address)
	s.Equal(models.DefaultName, rec.Name)
	s.Equal(models.DefaultReputation, rec.Reputation)
	s.Len(rec.Badges, 3)
	s.True(rec.IsActive)
	s.WithinDuration(s.now, rec.FirstActive, time.Second)

	got, ok, err := s.store.Get(s.ctx, mixedCaseAddr)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(rec.IdentityHash, got.IdentityHash)
	s.Equal(rec.Badges, got.Badges)
}

func (s *StoreSuite) TestCreateDuplicate() {
	_, err := s.store.Create(s.ctx, models.IdentityPatch{Address: lowerAddr})
	s.Require().NoError(err)

	_, err = s.store.Create(s.ctx, models.IdentityPatch{Address: mixedCaseAddr})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *StoreSuite) TestUpdateMissing() {
	_, err := s.store.Update(s.ctx, lowerAddr, models.IdentityPatch{Name: models.Ptr("x")})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestUpdateMergesAndKeepsKey() {
	_, err := s.store.Create(s.ctx, models.IdentityPatch{Address: lowerAddr, IdentityHash: models.Ptr("0x1")})
	s.Require().NoError(err)

	rec, err := s.store.Update(s.ctx, mixedCaseAddr, models.IdentityPatch{
		Address:    "0x0000000000000000000000000000000000000001",
		Reputation: models.Ptr(900),
	})
	s.Require().NoError(err)
	s.Equal(lowerAddr, rec.Address)
	s.Equal(900, rec.Reputation)
	s.Equal(models.DefaultName, rec.Name)
	s.Equal("0x1", rec.IdentityHash)
}

func (s *StoreSuite) TestUpdateDerivesIsActive() {
	_, err := s.store.Create(s.ctx, models.IdentityPatch{Address: lowerAddr, IdentityHash: models.Ptr("0x1")})
	s.Require().NoError(err)

	rec, err := s.store.Update(s.ctx, lowerAddr, models.IdentityPatch{IdentityHash: models.Ptr("")})
	s.Require().NoError(err)
	s.False(rec.IsActive)
}

func (s *StoreSuite) TestShareFlagIsMonotonic() {
	_, err := s.store.Create(s.ctx, models.IdentityPatch{Address: lowerAddr, IdentityHash: models.Ptr("0x1"), IsShared: models.Ptr(true)})
	s.Require().NoError(err)

	rec, err := s.store.Update(s.ctx, lowerAddr, models.IdentityPatch{IsShared: models.Ptr(false)})
	s.Require().NoError(err)
	s.True(rec.IsShared)

	rec, err = s.store.Update(s.ctx, lowerAddr, models.IdentityPatch{IdentityHash: models.Ptr("0x2"), IsShared: models.Ptr(false)})
	s.Require().NoError(err)
	s.False(rec.IsShared)
}

func (s *StoreSuite) TestLedgerPatchClearsShareFlag() {
	_, err := s.store.Create(s.ctx, models.IdentityPatch{Address: lowerAddr, IdentityHash: models.Ptr("0x1"), IsShared: models.Ptr(true)})
	s.Require().NoError(err)

	rec, created, err := s.store.Upsert(s.ctx, lowerAddr, models.IdentityPatch{
		IdentityHash: models.Ptr("0x1"), IsShared: models.Ptr(false), FromLedger: true,
	})
	s.Require().NoError(err)
	s.False(created)
	s.False(rec.IsShared)

	got, _, err := s.store.Get(s.ctx, lowerAddr)
	s.Require().NoError(err)
	s.False(got.IsShared)
}

func (s *StoreSuite) TestUpsert() {
	rec, created, err := s.store.Upsert(s.ctx, mixedCaseAddr, models.IdentityPatch{IdentityHash: models.Ptr("0x1")})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(lowerAddr, rec.Address)

	rec, created, err = s.store.Upsert(s.ctx, lowerAddr, models.IdentityPatch{IsShared: models.Ptr(true)})
	s.Require().NoError(err)
	s.False(created)
	s.True(rec.IsShared)
	s.Equal("0x1", rec.IdentityHash)
}

func (s *StoreSuite) TestReturnedRecordsDoNotAlias() {
	rec, err := s.store.Create(s.ctx, models.IdentityPatch{Address: lowerAddr})
	s.Require().NoError(err)
	rec.Badges[0].Name = "mutated"

	got, _, err := s.store.Get(s.ctx, lowerAddr)
	s.Require().NoError(err)
	s.Equal("Verified User", got.Badges[0].Name)
}

func TestInMemoryStore_ConcurrentUpsertsCreateOnce(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(rep int) {
			defer wg.Done()
			_, created, err := st.Upsert(ctx, lowerAddr, models.IdentityPatch{Reputation: models.Ptr(rep)})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, creates)
	_, ok, err := st.Get(ctx, lowerAddr)
	require.NoError(t, err)
	assert.True(t, ok)
}
