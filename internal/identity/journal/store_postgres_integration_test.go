//go:build integration

package journal

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identityvault/internal/identity/orchestrator"
	dErrors "identityvault/pkg/domain-errors"
	"identityvault/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, pg.DSN)
	require.NoError(t, err)
	defer pool.Close()

	st := NewPostgres(pool)
	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.EnsureSchema(ctx))

	require.NoError(t, st.Append(ctx, FromTransition(transition(orchestrator.StateSubmitting, nil))))
	require.NoError(t, st.Append(ctx, FromTransition(transition(orchestrator.StateFailed, dErrors.New(dErrors.CodeTimeout, "late")))))

	got, err := st.List(ctx, addr, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, orchestrator.StateFailed, got[0].To)
	assert.Equal(t, dErrors.CodeTimeout, got[0].ErrorCode)
	assert.Equal(t, transition(orchestrator.StateFailed, nil).At, got[0].At)
	assert.Equal(t, transition(orchestrator.StateFailed, nil).Elapsed, got[0].Elapsed)

	none, err := st.List(ctx, "0x00000000000000000000000000000000000000bb", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
