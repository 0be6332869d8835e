// Package memory is an in-process IdentityVault used for development
// (LEDGER_MODE=memory) and tests. It signs real transactions with the caller's
// signer but keeps contract state in a map.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"identityvault/internal/identity/models"
	"identityvault/internal/ledger"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
)

type opKind int

const (
	opStore opKind = iota
	opShare
)

type pendingTx struct {
	kind         opKind
	from         string
	identityHash string
	sourceChain  string
	recipient    string
	revert       bool
	drop         bool
	receipt      *ledger.Receipt
}

type entry struct {
	current   models.LedgerIdentity
	previous  models.LedgerIdentity
	visibleAt time.Time
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	abi      abi.ABI
	contract common.Address
	chainID  *big.Int
	readLag  time.Duration
	now      func() time.Time

	identities map[string]*entry
	pending    map[common.Hash]*pendingTx
	nonces     map[common.Address]uint64
	block      uint64
	gasPrice   *big.Int

	failNext   error
	revertNext bool
	dropNext   bool
}

type Option func(*Ledger)

// WithReadLag makes reads return the pre-write view for d after each mined
// write, like a lagging RPC node or indexer.
func WithReadLag(d time.Duration) Option {
	return func(l *Ledger) {
		l.readLag = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithGasPrice sets the legacy gas price reported by NetworkStatus.
func WithGasPrice(wei *big.Int) Option {
	return func(l *Ledger) {
		l.gasPrice = wei
	}
}

func New(contractAddr string, chainID int64, opts ...Option) (*Ledger, error) {
	parsed, err := abi.JSON(strings.NewReader(ledger.IdentityVaultABI))
	if err != nil {
		return nil, fmt.Errorf("parse identity vault abi: %w", err)
	}
	contract, err := address.ToCommon(contractAddr)
	if err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	l := &Ledger{
		abi:        parsed,
		contract:   contract,
		chainID:    big.NewInt(chainID),
		now:        time.Now,
		identities: make(map[string]*entry),
		pending:    make(map[common.Hash]*pendingTx),
		nonces:     make(map[common.Address]uint64),
		block:      1,
		gasPrice:   big.NewInt(1_000_000_000),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// FailNextSubmit makes the next submission fail with err before anything is
// recorded. Pass ledger.ErrUserRejected to simulate a declined signature.
func (l *Ledger) FailNextSubmit(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// RevertNext makes the next submitted transaction mine with a failed status.
func (l *Ledger) RevertNext() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revertNext = true
}

// DropNext makes the next transaction mine successfully without changing
// contract state.
func (l *Ledger) DropNext() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropNext = true
}

func (l *Ledger) SubmitStore(ctx context.Context, signer ledger.Signer, identityHash, sourceChain string) (*ledger.TxHandle, error) {
	return l.submit(ctx, signer, ledger.StoreGasLimit, &pendingTx{
		kind:         opStore,
		identityHash: identityHash,
		sourceChain:  sourceChain,
	}, "storeIdentity", identityHash, sourceChain)
}

func (l *Ledger) SubmitShare(ctx context.Context, signer ledger.Signer, recipient string) (*ledger.TxHandle, error) {
	to, err := address.ToCommon(recipient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "Please enter a valid recipient address.")
	}
	return l.submit(ctx, signer, ledger.ShareGasLimit, &pendingTx{
		kind:      opShare,
		recipient: address.FromCommon(to),
	}, "shareIdentity", to)
}

func (l *Ledger) submit(ctx context.Context, signer ledger.Signer, gasLimit uint64, op *pendingTx, method string, args ...any) (*ledger.TxHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "submission abandoned")
	}
	if !signer.Connected() {
		return nil, dErrors.New(dErrors.CodeNotConnected, "wallet not connected")
	}
	input, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "encode call")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		if ledger.IsUserRejection(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeUserRejected, "transaction was rejected by user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTransactionFailed, err.Error())
	}

	nonce := l.nonces[signer.From]
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: l.gasPrice,
		Gas:      gasLimit,
		To:       &l.contract,
		Data:     input,
	})
	signed, err := signer.SignFn(signer.From, tx)
	if err != nil {
		if ledger.IsUserRejection(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeUserRejected, "transaction was rejected by user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTransactionFailed, err.Error())
	}
	l.nonces[signer.From] = nonce + 1

	op.from = address.FromCommon(signer.From)
	op.revert, l.revertNext = l.revertNext, false
	op.drop, l.dropNext = l.dropNext, false
	l.pending[signed.Hash()] = op

	return &ledger.TxHandle{Hash: signed.Hash(), Tx: signed}, nil
}

// AwaitConfirmation mines the transaction on first call. Later calls return
// the same outcome.
func (l *Ledger) AwaitConfirmation(_ context.Context, handle *ledger.TxHandle) (*ledger.Receipt, error) {
	if handle == nil {
		return nil, dErrors.New(dErrors.CodeTransactionFailed, "no transaction to wait for")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	op, ok := l.pending[handle.Hash]
	if !ok {
		return nil, dErrors.New(dErrors.CodeTransactionFailed, "unknown transaction "+handle.Hash.Hex())
	}
	if op.receipt == nil {
		l.block++
		op.receipt = &ledger.Receipt{TxHash: handle.Hash, BlockNumber: l.block, GasUsed: 21000}
		if !op.revert {
			op.revert = !l.apply(op)
		}
	}
	if op.revert {
		return nil, dErrors.Newf(dErrors.CodeTransactionFailed, "transaction reverted in block %d", op.receipt.BlockNumber)
	}
	return op.receipt, nil
}

// apply mutates contract state. It returns false when the contract would revert.
func (l *Ledger) apply(op *pendingTx) bool {
	e, ok := l.identities[op.from]
	if op.kind == opShare && (!ok || e.current.IdentityHash == "") {
		return false
	}
	if op.drop {
		return true
	}
	if !ok {
		e = &entry{current: models.LedgerIdentity{Address: op.from}}
		l.identities[op.from] = e
	}
	e.previous = e.current
	e.visibleAt = l.now().Add(l.readLag)

	switch op.kind {
	case opStore:
		e.current.IdentityHash = op.identityHash
		e.current.SourceChain = op.sourceChain
		e.current.Timestamp = l.now().UTC().Truncate(time.Second)
		e.current.IsActive = op.identityHash != ""
		e.current.IsShared = false
	case opShare:
		e.current.IsShared = true
	}
	return true
}

func (l *Ledger) ReadIdentity(_ context.Context, addr string) (*models.LedgerIdentity, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.identities[key]
	if !ok {
		return &models.LedgerIdentity{Address: key}, nil
	}
	view := e.current
	if l.now().Before(e.visibleAt) {
		view = e.previous
	}
	view.Address = key
	return &view, nil
}

func (l *Ledger) NetworkStatus(_ context.Context) (*ledger.NetworkStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &ledger.NetworkStatus{
		ChainID:      l.chainID.Int64(),
		BlockNumber:  l.block,
		GasPriceWei:  l.gasPrice.String(),
		GasPriceGwei: ledger.GweiOf(l.gasPrice),
	}, nil
}

// Submitted reports how many transactions were accepted for signing.
func (l *Ledger) Submitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
