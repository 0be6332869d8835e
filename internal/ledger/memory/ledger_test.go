package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identityvault/internal/ledger"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
)

const contractHex = "0xe909fb6aF39120A14441740FdC2Be873Ee5650b2"

func newSigner(t *testing.T) ledger.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := ledger.SignerFromKey(key, big.NewInt(1287))
	require.NoError(t, err)
	return signer
}

func TestLedger_StoreThenRead(t *testing.T) {
	ctx := context.Background()
	l, err := New(contractHex, 1287)
	require.NoError(t, err)
	signer := newSigner(t)
	from := address.FromCommon(signer.From)

	view, err := l.ReadIdentity(ctx, from)
	require.NoError(t, err)
	assert.True(t, view.Empty())

	handle, err := l.SubmitStore(ctx, signer, "0xabc", "ethereum")
	require.NoError(t, err)
	require.NotNil(t, handle.Tx)

	receipt, err := l.AwaitConfirmation(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, handle.Hash, receipt.TxHash)

	view, err = l.ReadIdentity(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", view.IdentityHash)
	assert.Equal(t, "ethereum", view.SourceChain)
	assert.True(t, view.IsActive)
	assert.False(t, view.IsShared)
}

func TestLedger_ReadLag(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l, err := New(contractHex, 1287, WithReadLag(2*time.Second), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	signer := newSigner(t)

	handle, err := l.SubmitStore(ctx, signer, "0xabc", "ethereum")
	require.NoError(t, err)
	_, err = l.AwaitConfirmation(ctx, handle)
	require.NoError(t, err)

	view, _ := l.ReadIdentity(ctx, address.FromCommon(signer.From))
	assert.True(t, view.Empty(), "write must not be visible before the lag elapses")

	now = now.Add(2 * time.Second)
	view, _ = l.ReadIdentity(ctx, address.FromCommon(signer.From))
	assert.Equal(t, "0xabc", view.IdentityHash)
}

func TestLedger_ShareRequiresIdentity(t *testing.T) {
	ctx := context.Background()
	l, err := New(contractHex, 1287)
	require.NoError(t, err)
	signer := newSigner(t)

	handle, err := l.SubmitShare(ctx, signer, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	_, err = l.AwaitConfirmation(ctx, handle)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransactionFailed))

	store, err := l.SubmitStore(ctx, signer, "0xabc", "lisk")
	require.NoError(t, err)
	_, err = l.AwaitConfirmation(ctx, store)
	require.NoError(t, err)

	share, err := l.SubmitShare(ctx, signer, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	_, err = l.AwaitConfirmation(ctx, share)
	require.NoError(t, err)

	view, _ := l.ReadIdentity(ctx, address.FromCommon(signer.From))
	assert.True(t, view.IsShared)
}

func TestLedger_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	l, err := New(contractHex, 1287)
	require.NoError(t, err)
	signer := newSigner(t)

	l.FailNextSubmit(ledger.ErrUserRejected)
	_, err = l.SubmitStore(ctx, signer, "0xabc", "ethereum")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUserRejected))
	assert.Equal(t, 0, l.Submitted())

	l.RevertNext()
	handle, err := l.SubmitStore(ctx, signer, "0xabc", "ethereum")
	require.NoError(t, err)
	_, err = l.AwaitConfirmation(ctx, handle)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransactionFailed))

	l.DropNext()
	handle, err = l.SubmitStore(ctx, signer, "0xabc", "ethereum")
	require.NoError(t, err)
	_, err = l.AwaitConfirmation(ctx, handle)
	require.NoError(t, err)
	view, _ := l.ReadIdentity(ctx, address.FromCommon(signer.From))
	assert.True(t, view.Empty())
}

func TestLedger_NotConnected(t *testing.T) {
	l, err := New(contractHex, 1287)
	require.NoError(t, err)
	_, err = l.SubmitStore(context.Background(), ledger.Signer{}, "0xabc", "ethereum")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotConnected))
}

func TestLedger_NetworkStatus(t *testing.T) {
	l, err := New(contractHex, 1287, WithGasPrice(big.NewInt(2_000_000_000)))
	require.NoError(t, err)
	status, err := l.NetworkStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1287), status.ChainID)
	assert.InDelta(t, 2.0, status.GasPriceGwei, 1e-9)
}
