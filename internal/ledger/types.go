// Package ledger talks to the IdentityVault contract.
package ledger

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	dErrors "identityvault/pkg/domain-errors"
)

// Fixed gas ceilings. No estimation is performed.
const (
	StoreGasLimit uint64 = 500000
	ShareGasLimit uint64 = 300000
)

// userRejectedCode is the EIP-1193 "user rejected request" code.
const userRejectedCode = 4001

// ErrUserRejected is returned by signers that surface a declined signature.
var ErrUserRejected = errors.New("user rejected transaction")

// Signer is the authenticated actor a transaction is sent as.
type Signer struct {
	From   common.Address
	SignFn bind.SignerFn
}

// Connected reports whether the signer can sign transactions.
func (s Signer) Connected() bool {
	return s.From != (common.Address{}) && s.SignFn != nil
}

// NewKeyedSigner builds a signer from a hex-encoded secp256k1 key.
func NewKeyedSigner(hexKey string, chainID *big.Int) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Signer{}, dErrors.Wrap(err, dErrors.CodeNotConnected, "invalid operator key")
	}
	return SignerFromKey(key, chainID)
}

// SignerFromKey wraps an in-memory private key.
func SignerFromKey(key *ecdsa.PrivateKey, chainID *big.Int) (Signer, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return Signer{}, dErrors.Wrap(err, dErrors.CodeNotConnected, "build transactor")
	}
	return Signer{From: opts.From, SignFn: opts.Signer}, nil
}

// TxHandle identifies a submitted transaction. Tx is nil for ledgers that do
// not produce real transactions.
type TxHandle struct {
	Hash common.Hash
	Tx   *types.Transaction
}

// Receipt is the mined outcome of a transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// FeeData is the network's current fee suggestion. Any field may be nil.
type FeeData struct {
	GasPrice  *big.Int
	GasTipCap *big.Int
	BaseFee   *big.Int
}

// Empty reports whether no fee field could be retrieved.
func (f FeeData) Empty() bool {
	return f.GasPrice == nil && f.GasTipCap == nil && f.BaseFee == nil
}

// NetworkStatus is a point-in-time snapshot of the connected chain.
type NetworkStatus struct {
	ChainID      int64   `json:"chainId"`
	BlockNumber  uint64  `json:"blockNumber"`
	GasPriceWei  string  `json:"gasPriceWei"`
	GasPriceGwei float64 `json:"gasPriceGwei"`
}

// GweiOf converts a wei amount to gwei for display.
func GweiOf(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return f
}

// IsUserRejection recognizes a declined signature by error code or message.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") ||
		strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "rejected by user")
}

// classifySendError maps signing and submission failures onto domain codes.
func classifySendError(err error) error {
	if IsUserRejection(err) {
		return dErrors.Wrap(err, dErrors.CodeUserRejected, "transaction was rejected by user")
	}
	return dErrors.Wrap(err, dErrors.CodeTransactionFailed, err.Error())
}
