package journal

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identityvault/internal/identity/orchestrator"
	dErrors "identityvault/pkg/domain-errors"
)

const addr = "0x00000000000000000000000000000000000000aa"

func transition(to orchestrator.State, err error) orchestrator.Transition {
	return orchestrator.Transition{
		OperationID: "op-1",
		Kind:        orchestrator.KindStore,
		Address:     addr,
		From:        orchestrator.StateIdle,
		To:          to,
		At:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed:     1500 * time.Millisecond,
		Err:         err,
	}
}

func TestFromTransition(t *testing.T) {
	e := FromTransition(transition(orchestrator.StateFailed, dErrors.New(dErrors.CodeUserRejected, "rejected")))
	assert.Equal(t, dErrors.CodeUserRejected, e.ErrorCode)
	assert.Equal(t, orchestrator.StateFailed, e.To)

	e = FromTransition(transition(orchestrator.StateSubmitting, nil))
	assert.Empty(t, e.ErrorCode)
}

func TestHook_HistoryNewestFirst(t *testing.T) {
	hook := NewHook(NewInMemoryStore(), slog.Default())
	ctx := context.Background()

	hook.OnTransition(ctx, transition(orchestrator.StateSubmitting, nil))
	hook.OnTransition(ctx, transition(orchestrator.StateAwaitingConfirmation, nil))
	hook.OnTransition(ctx, transition(orchestrator.StateConfirmed, nil))

	got, err := hook.History(ctx, "0x00000000000000000000000000000000000000AA", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, orchestrator.StateConfirmed, got[0].To)
	assert.Equal(t, orchestrator.StateAwaitingConfirmation, got[1].To)

	_, err = hook.History(ctx, "nope", 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAddress))
}

type failingStore struct{ InMemoryStore }

func (*failingStore) Append(context.Context, Entry) error { return errors.New("disk full") }

func TestHook_AppendErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	hook := NewHook(&failingStore{}, slog.New(slog.NewJSONHandler(&buf, nil)))

	hook.OnTransition(context.Background(), transition(orchestrator.StateSubmitting, nil))

	assert.Contains(t, buf.String(), "failed to journal transition")
	assert.Contains(t, buf.String(), "disk full")
}
