package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"identityvault/internal/identity/models"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
	"identityvault/pkg/platform/sentinel"
)

// Backend is the RPC surface the gateway needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// EthGateway submits and reads IdentityVault calls over JSON-RPC.
type EthGateway struct {
	backend       Backend
	contract      *bind.BoundContract
	address       common.Address
	storeGasLimit uint64
	shareGasLimit uint64
	logger        *slog.Logger
}

type Option func(*EthGateway)

// WithGasLimits overrides the fixed gas ceilings. Zero keeps the default.
func WithGasLimits(store, share uint64) Option {
	return func(g *EthGateway) {
		if store > 0 {
			g.storeGasLimit = store
		}
		if share > 0 {
			g.shareGasLimit = share
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *EthGateway) {
		g.logger = logger
	}
}

// NewEthGateway binds the IdentityVault ABI at contractAddr.
func NewEthGateway(backend Backend, contractAddr string, opts ...Option) (*EthGateway, error) {
	addr, err := address.ToCommon(contractAddr)
	if err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(IdentityVaultABI))
	if err != nil {
		return nil, fmt.Errorf("parse identity vault abi: %w", err)
	}
	g := &EthGateway{
		backend:       backend,
		contract:      bind.NewBoundContract(addr, parsed, backend, backend, backend),
		address:       addr,
		storeGasLimit: StoreGasLimit,
		shareGasLimit: ShareGasLimit,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SubmitStore sends storeIdentity(identityHash, sourceChain) as signer.
func (g *EthGateway) SubmitStore(ctx context.Context, signer Signer, identityHash, sourceChain string) (*TxHandle, error) {
	return g.transact(ctx, signer, g.storeGasLimit, methodStore, identityHash, sourceChain)
}

// SubmitShare sends shareIdentity(recipient) as signer.
func (g *EthGateway) SubmitShare(ctx context.Context, signer Signer, recipient string) (*TxHandle, error) {
	to, err := address.ToCommon(recipient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "Please enter a valid recipient address.")
	}
	return g.transact(ctx, signer, g.shareGasLimit, methodShare, to)
}

func (g *EthGateway) transact(ctx context.Context, signer Signer, gasLimit uint64, method string, args ...any) (*TxHandle, error) {
	if !signer.Connected() {
		return nil, dErrors.New(dErrors.CodeNotConnected, "wallet not connected")
	}

	fee, err := g.FeeData(ctx)
	if err != nil {
		return nil, err
	}

	opts := &bind.TransactOpts{
		From:     signer.From,
		Signer:   signer.SignFn,
		Context:  ctx,
		GasLimit: gasLimit,
	}
	// Legacy pricing only when the node offers it; otherwise bind fills the
	// EIP-1559 fields itself.
	if fee.GasPrice != nil {
		opts.GasPrice = fee.GasPrice
	}

	tx, err := g.contract.Transact(opts, method, args...)
	if err != nil {
		g.logger.WarnContext(ctx, "transaction submission failed",
			"method", method,
			"from", address.FromCommon(signer.From),
			"error", err,
		)
		return nil, classifySendError(err)
	}

	g.logger.InfoContext(ctx, "transaction submitted",
		"method", method,
		"from", address.FromCommon(signer.From),
		"tx_hash", tx.Hash().Hex(),
		"gas_limit", gasLimit,
	)
	return &TxHandle{Hash: tx.Hash(), Tx: tx}, nil
}

// FeeData collects whatever fee information the node provides. It fails only
// when nothing could be retrieved.
func (g *EthGateway) FeeData(ctx context.Context) (FeeData, error) {
	var (
		fee  FeeData
		errs []error
	)
	if price, err := g.backend.SuggestGasPrice(ctx); err == nil {
		fee.GasPrice = price
	} else {
		errs = append(errs, err)
	}
	if head, err := g.backend.HeaderByNumber(ctx, nil); err == nil && head != nil {
		fee.BaseFee = head.BaseFee
	} else if err != nil {
		errs = append(errs, err)
	}
	if fee.BaseFee != nil {
		if tip, err := g.backend.SuggestGasTipCap(ctx); err == nil {
			fee.GasTipCap = tip
		} else {
			errs = append(errs, err)
		}
	}
	if fee.Empty() {
		return FeeData{}, dErrors.Wrap(errors.Join(errs...), dErrors.CodeFeeUnavailable, "could not get fee data")
	}
	return fee, nil
}

// AwaitConfirmation blocks until the transaction is mined. There is no
// internal timeout; ctx bounds the wait.
func (g *EthGateway) AwaitConfirmation(ctx context.Context, handle *TxHandle) (*Receipt, error) {
	if handle == nil || handle.Tx == nil {
		return nil, dErrors.New(dErrors.CodeTransactionFailed, "no transaction to wait for")
	}
	receipt, err := bind.WaitMined(ctx, g.backend, handle.Tx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "stopped waiting for confirmation")
		}
		return nil, classifySendError(err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, dErrors.New(dErrors.CodeTransactionFailed, "transaction reverted in block "+receipt.BlockNumber.String())
	}
	out := &Receipt{TxHash: receipt.TxHash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

// ReadIdentity calls getIdentity. Unknown addresses come back as an empty view.
func (g *EthGateway) ReadIdentity(ctx context.Context, addr string) (*models.LedgerIdentity, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	err = g.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGet, common.HexToAddress(key))
	if err != nil {
		return nil, dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), dErrors.CodeInternal, "read identity")
	}
	if len(out) != 1 {
		return nil, dErrors.Newf(dErrors.CodeInternal, "getIdentity returned %d values", len(out))
	}
	raw := *abi.ConvertType(out[0], new(identityTuple)).(*identityTuple)

	view := &models.LedgerIdentity{
		Address:      key,
		IdentityHash: raw.IdentityHash,
		SourceChain:  raw.SourceChain,
		IsActive:     raw.IsActive,
		IsShared:     raw.IsShared,
	}
	if raw.Timestamp != nil && raw.Timestamp.Sign() > 0 {
		view.Timestamp = time.Unix(raw.Timestamp.Int64(), 0).UTC()
	}
	return view, nil
}

// NetworkStatus reports chain id, head block and gas price.
func (g *EthGateway) NetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	chainID, err := g.backend.ChainID(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotConnected, "chain id unavailable")
	}
	block, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotConnected, "block number unavailable")
	}
	status := &NetworkStatus{ChainID: chainID.Int64(), BlockNumber: block}
	if price, err := g.backend.SuggestGasPrice(ctx); err == nil {
		status.GasPriceWei = price.String()
		status.GasPriceGwei = GweiOf(price)
	}
	return status, nil
}
