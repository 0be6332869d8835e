package ledger

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "identityvault/pkg/domain-errors"
)

const contractHex = "0xe909fb6aF39120A14441740FdC2Be873Ee5650b2"

// fakeBackend records sent transactions and answers reads from fixed values.
type fakeBackend struct {
	mu sync.Mutex

	gasPrice    *big.Int
	gasPriceErr error
	baseFee     *big.Int
	headerErr   error
	tipCap      *big.Int
	sendErr     error

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	callOut  []byte
	callErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{receipts: make(map[common.Hash]*types.Receipt)}
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callOut, f.callErr
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("estimation must not be used")
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	if f.gasPriceErr != nil {
		return nil, f.gasPriceErr
	}
	return f.gasPrice, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if f.tipCap == nil {
		return big.NewInt(1), nil
	}
	return f.tipCap, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return &types.Header{Number: big.NewInt(100), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return 4242, nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1287), nil
}

func (f *fakeBackend) lastSent() *types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type rpcCodeError struct {
	code int
	msg  string
}

func (e rpcCodeError) Error() string  { return e.msg }
func (e rpcCodeError) ErrorCode() int { return e.code }

type GatewaySuite struct {
	suite.Suite
	backend *fakeBackend
	gateway *EthGateway
	signer  Signer
	abi     abi.ABI
	ctx     context.Context
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = newFakeBackend()
	s.backend.gasPrice = big.NewInt(1_000_000_000)

	gw, err := NewEthGateway(s.backend, contractHex)
	s.Require().NoError(err)
	s.gateway = gw

	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	s.signer, err = SignerFromKey(key, big.NewInt(1287))
	s.Require().NoError(err)

	s.abi, err = abi.JSON(strings.NewReader(IdentityVaultABI))
	s.Require().NoError(err)
}

func (s *GatewaySuite) decode(tx *types.Transaction) (string, []interface{}) {
	method, err := s.abi.MethodById(tx.Data()[:4])
	s.Require().NoError(err)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	s.Require().NoError(err)
	return method.Name, args
}

func (s *GatewaySuite) TestSubmitStore_UsesLegacyGasPriceWhenPresent() {
	handle, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.Require().NoError(err)

	tx := s.backend.lastSent()
	s.Require().NotNil(tx)
	s.Equal(handle.Hash, tx.Hash())
	s.Equal(uint8(types.LegacyTxType), tx.Type())
	s.Equal(big.NewInt(1_000_000_000), tx.GasPrice())
	s.Equal(StoreGasLimit, tx.Gas())
	s.Equal(uint64(7), tx.Nonce())
	s.Equal(common.HexToAddress(contractHex), *tx.To())

	name, args := s.decode(tx)
	s.Equal(methodStore, name)
	s.Equal([]interface{}{"0xabc", "ethereum"}, args)
}

func (s *GatewaySuite) TestSubmitStore_FallsBackToDynamicFees() {
	s.backend.gasPriceErr = errors.New("method not found")
	s.backend.baseFee = big.NewInt(100)
	s.backend.tipCap = big.NewInt(5)

	_, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.Require().NoError(err)

	tx := s.backend.lastSent()
	s.Equal(uint8(types.DynamicFeeTxType), tx.Type())
	s.Equal(big.NewInt(5), tx.GasTipCap())
	s.Equal(StoreGasLimit, tx.Gas())
}

func (s *GatewaySuite) TestSubmitShare_UsesShareGasLimit() {
	recipient := "0x00000000000000000000000000000000000000AA"
	_, err := s.gateway.SubmitShare(s.ctx, s.signer, recipient)
	s.Require().NoError(err)

	tx := s.backend.lastSent()
	s.Equal(ShareGasLimit, tx.Gas())
	name, args := s.decode(tx)
	s.Equal(methodShare, name)
	s.Equal(common.HexToAddress(recipient), args[0])
}

func (s *GatewaySuite) TestSubmitShare_InvalidRecipient() {
	_, err := s.gateway.SubmitShare(s.ctx, s.signer, "not-an-address")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Nil(s.backend.lastSent())
}

func (s *GatewaySuite) TestConfigurableGasLimits() {
	gw, err := NewEthGateway(s.backend, contractHex, WithGasLimits(650000, 0))
	s.Require().NoError(err)

	_, err = gw.SubmitStore(s.ctx, s.signer, "0xabc", "lisk")
	s.Require().NoError(err)
	s.Equal(uint64(650000), s.backend.lastSent().Gas())

	_, err = gw.SubmitShare(s.ctx, s.signer, "0x00000000000000000000000000000000000000AA")
	s.Require().NoError(err)
	s.Equal(ShareGasLimit, s.backend.lastSent().Gas())
}

func (s *GatewaySuite) TestSubmit_NotConnected() {
	_, err := s.gateway.SubmitStore(s.ctx, Signer{}, "0xabc", "ethereum")
	s.True(dErrors.HasCode(err, dErrors.CodeNotConnected))
	s.Nil(s.backend.lastSent())
}

func (s *GatewaySuite) TestSubmit_FeeUnavailable() {
	s.backend.gasPriceErr = errors.New("down")
	s.backend.headerErr = errors.New("down")

	_, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.True(dErrors.HasCode(err, dErrors.CodeFeeUnavailable))
	s.Nil(s.backend.lastSent())
}

func (s *GatewaySuite) TestSubmit_SignerRejects() {
	s.signer.SignFn = func(common.Address, *types.Transaction) (*types.Transaction, error) {
		return nil, ErrUserRejected
	}
	_, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.True(dErrors.HasCode(err, dErrors.CodeUserRejected))
}

func (s *GatewaySuite) TestSubmit_RPCRejectionCode() {
	s.backend.sendErr = rpcCodeError{code: 4001, msg: "request declined"}
	_, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.True(dErrors.HasCode(err, dErrors.CodeUserRejected))
}

func (s *GatewaySuite) TestSubmit_OtherFailure() {
	s.backend.sendErr = errors.New("insufficient funds for gas")
	_, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionFailed))
	s.Contains(dErrors.MessageOf(err), "insufficient funds")
}

func (s *GatewaySuite) TestAwaitConfirmation_Success() {
	handle, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.Require().NoError(err)
	s.backend.receipts[handle.Hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      handle.Hash,
		BlockNumber: big.NewInt(99),
		GasUsed:     21000,
	}

	receipt, err := s.gateway.AwaitConfirmation(s.ctx, handle)
	s.Require().NoError(err)
	s.Equal(uint64(99), receipt.BlockNumber)
	s.Equal(handle.Hash, receipt.TxHash)
}

func (s *GatewaySuite) TestAwaitConfirmation_Reverted() {
	handle, err := s.gateway.SubmitStore(s.ctx, s.signer, "0xabc", "ethereum")
	s.Require().NoError(err)
	s.backend.receipts[handle.Hash] = &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		TxHash:      handle.Hash,
		BlockNumber: big.NewInt(99),
	}

	_, err = s.gateway.AwaitConfirmation(s.ctx, handle)
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionFailed))
}

func (s *GatewaySuite) TestAwaitConfirmation_NoTransaction() {
	_, err := s.gateway.AwaitConfirmation(s.ctx, &TxHandle{})
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionFailed))
}

func (s *GatewaySuite) TestReadIdentity() {
	packed, err := s.abi.Methods[methodGet].Outputs.Pack(identityTuple{
		IdentityHash: "0xabc", SourceChain: "ethereum", Timestamp: big.NewInt(1_700_000_000), IsActive: true, IsShared: true,
	})
	s.Require().NoError(err)
	s.backend.callOut = packed

	view, err := s.gateway.ReadIdentity(s.ctx, "0x00000000000000000000000000000000000000AA")
	s.Require().NoError(err)
	s.Equal("0x00000000000000000000000000000000000000aa", view.Address)
	s.Equal("0xabc", view.IdentityHash)
	s.Equal("ethereum", view.SourceChain)
	s.Equal(int64(1_700_000_000), view.Timestamp.Unix())
	s.True(view.IsActive)
	s.True(view.IsShared)
	s.False(view.Empty())
}

func (s *GatewaySuite) TestReadIdentity_EmptySentinel() {
	packed, err := s.abi.Methods[methodGet].Outputs.Pack(identityTuple{Timestamp: big.NewInt(0)})
	s.Require().NoError(err)
	s.backend.callOut = packed

	view, err := s.gateway.ReadIdentity(s.ctx, "0x00000000000000000000000000000000000000AA")
	s.Require().NoError(err)
	s.True(view.Empty())
	s.True(view.Timestamp.IsZero())
}

func (s *GatewaySuite) TestReadIdentity_InvalidAddress() {
	_, err := s.gateway.ReadIdentity(s.ctx, "0x12")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidAddress))
}

func (s *GatewaySuite) TestNetworkStatus() {
	status, err := s.gateway.NetworkStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1287), status.ChainID)
	s.Equal(uint64(4242), status.BlockNumber)
	s.InDelta(1.0, status.GasPriceGwei, 1e-9)
}

func TestIsUserRejection(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrUserRejected, true},
		{"wrapped sentinel", errors.Join(errors.New("ctx"), ErrUserRejected), true},
		{"rpc code", rpcCodeError{code: 4001, msg: "nope"}, true},
		{"other rpc code", rpcCodeError{code: -32000, msg: "nonce too low"}, false},
		{"message", errors.New("MetaMask Tx Signature: User denied transaction signature."), true},
		{"rejected by user", errors.New("Transaction was rejected by user"), true},
		{"unrelated", errors.New("execution reverted"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUserRejection(tc.err))
		})
	}
}

func TestNewKeyedSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))

	signer, err := NewKeyedSigner(hexKey, big.NewInt(1287))
	require.NoError(t, err)
	assert.True(t, signer.Connected())
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.From)

	_, err = NewKeyedSigner("zz", big.NewInt(1287))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotConnected))
}

func TestGweiOf(t *testing.T) {
	assert.InDelta(t, 1.5, GweiOf(big.NewInt(1_500_000_000)), 1e-9)
	assert.Zero(t, GweiOf(nil))
}
