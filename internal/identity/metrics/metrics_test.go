package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"identityvault/internal/identity/orchestrator"
	dErrors "identityvault/pkg/domain-errors"
)

func TestOnTransition(t *testing.T) {
	m := New(prometheus.NewRegistry())
	ctx := context.Background()
	step := func(from, to orchestrator.State, err error) {
		m.OnTransition(ctx, orchestrator.Transition{
			Kind: orchestrator.KindStore, From: from, To: to, Elapsed: time.Second, Err: err,
		})
	}

	step(orchestrator.StateIdle, orchestrator.StateSubmitting, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))

	step(orchestrator.StateSubmitting, orchestrator.StateFailed, dErrors.New(dErrors.CodeUserRejected, "no"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("store", "failed", "user_rejected")))

	step(orchestrator.StateIdle, orchestrator.StateSubmitting, nil)
	step(orchestrator.StateReverifying, orchestrator.StateConfirmed, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("store", "confirmed", "")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.StateReached))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.OnTransition(context.Background(), orchestrator.Transition{To: orchestrator.StateConfirmed})
	m.ObserveNetwork(1, 1)
	m.IncrementRefreshError(errors.New("x"))
}

func TestObserveNetworkAndRefreshErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveNetwork(42, 1.5)
	m.IncrementRefreshError(dErrors.New(dErrors.CodeTimeout, "slow"))
	m.IncrementRefreshError(errors.New("boom"))

	assert.Equal(t, 42.0, testutil.ToFloat64(m.BlockNumber))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.GasPriceGwei))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshErrors.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshErrors.WithLabelValues("internal_error")))
}
