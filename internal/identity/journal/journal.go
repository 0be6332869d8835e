// Package journal keeps an append-only history of operation state changes.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"identityvault/internal/identity/orchestrator"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Entry is one recorded transition.
type Entry struct {
	OperationID string             `json:"operationId"`
	Kind        orchestrator.Kind  `json:"kind"`
	Address     string             `json:"address"`
	From        orchestrator.State `json:"from"`
	To          orchestrator.State `json:"to"`
	TxHash      string             `json:"txHash,omitempty"`
	ErrorCode   dErrors.Code       `json:"errorCode,omitempty"`
	At          time.Time          `json:"at"`
	Elapsed     time.Duration      `json:"elapsedNs"`
}

// FromTransition converts a transition into a journal entry.
func FromTransition(t orchestrator.Transition) Entry {
	e := Entry{
		OperationID: t.OperationID,
		Kind:        t.Kind,
		Address:     t.Address,
		From:        t.From,
		To:          t.To,
		TxHash:      t.TxHash,
		At:          t.At.UTC(),
		Elapsed:     t.Elapsed,
	}
	if t.Err != nil {
		e.ErrorCode = dErrors.CodeOf(t.Err)
	}
	return e
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// List returns the newest entries for address, newest first.
	List(ctx context.Context, address string, limit int) ([]Entry, error)
}

// Hook records every transition into a Store.
type Hook struct {
	store  Store
	logger *slog.Logger
}

func NewHook(store Store, logger *slog.Logger) *Hook {
	return &Hook{store: store, logger: logger}
}

// OnTransition never fails the operation; write errors are logged.
func (h *Hook) OnTransition(ctx context.Context, t orchestrator.Transition) {
	if err := h.store.Append(ctx, FromTransition(t)); err != nil {
		h.logger.ErrorContext(ctx, "failed to journal transition",
			"operation_id", t.OperationID,
			"address", t.Address,
			"to", t.To,
			"error", err,
		)
	}
}

// History returns the recorded transitions for address.
func (h *Hook) History(ctx context.Context, addr string, limit int) ([]Entry, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return h.store.List(ctx, key, limit)
}

// InMemoryStore keeps entries per address in append order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Address] = append(s.entries[e.Address], e)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, addr string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[addr]
	out := make([]Entry, 0, min(len(all), limit))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
