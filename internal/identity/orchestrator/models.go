package orchestrator

import (
	"time"

	"identityvault/internal/identity/models"
	"identityvault/internal/ledger"
	dErrors "identityvault/pkg/domain-errors"
)

// State is a step of the store/share state machine.
type State string

const (
	StateIdle                 State = "idle"
	StateSubmitting           State = "submitting"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateInvalidating         State = "invalidating"
	StateReverifying          State = "reverifying"
	StateConfirmed            State = "confirmed"
	StateFailed               State = "failed"
)

// Terminal reports whether s ends an operation.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// Kind names the on-chain write an operation performs.
type Kind string

const (
	KindStore Kind = "store"
	KindShare Kind = "share"
)

// StoreIntent asks to bind IdentityHash to Address on chain.
type StoreIntent struct {
	Address      string
	IdentityHash string
	SourceChain  string
	// ImportedFrom is carried into the local record on confirmation.
	ImportedFrom *models.ImportedFrom
}

// ShareIntent asks to share Address's identity with Recipient.
type ShareIntent struct {
	Address   string
	Recipient string
}

// Operation is a snapshot of one store or share run.
type Operation struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Address   string    `json:"address"`
	State     State     `json:"state"`
	TxHash    string    `json:"txHash,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transition is reported to hooks on every state change.
type Transition struct {
	OperationID string
	Kind        Kind
	Address     string
	From        State
	To          State
	TxHash      string
	At          time.Time
	Elapsed     time.Duration
	Err         error
}

// Outcome of a finished operation.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

// Notification is emitted exactly once per operation, when it reaches a
// terminal state.
type Notification struct {
	OperationID string                 `json:"operationId"`
	Kind        Kind                   `json:"kind"`
	Address     string                 `json:"address"`
	Outcome     Outcome                `json:"outcome"`
	ErrorCode   dErrors.Code           `json:"errorCode,omitempty"`
	Message     string                 `json:"message"`
	TxHash      string                 `json:"txHash,omitempty"`
	Identity    *models.IdentityRecord `json:"identity,omitempty"`
	At          time.Time              `json:"at"`
}

// Result is returned by a confirmed operation.
type Result struct {
	Operation Operation
	Receipt   *ledger.Receipt
	View      *models.LedgerIdentity
	// Identity is the reconciled local record. It is nil when the local write
	// failed after on-chain confirmation.
	Identity *models.IdentityRecord
}
