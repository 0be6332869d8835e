package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"identityvault/internal/identity/orchestrator"
	dErrors "identityvault/pkg/domain-errors"
)

// Metrics observes the store/share state machine and the chain poller.
type Metrics struct {
	// Terminal outcomes by kind, state and error code
	Operations *prometheus.CounterVec

	// Time from operation start until each state is entered
	StateReached *prometheus.HistogramVec

	// Operations that have started and not yet finished
	InFlight prometheus.Gauge

	// Chain head and gas price seen by the poller
	BlockNumber  prometheus.Gauge
	GasPriceGwei prometheus.Gauge

	// Poller refresh failures by reason
	RefreshErrors *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identityvault_operations_total",
			Help: "Finished store/share operations by kind, terminal state and error code",
		}, []string{"kind", "state", "code"}),

		StateReached: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identityvault_operation_state_reached_seconds",
			Help:    "Time from operation start until a state is entered",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind", "state"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "identityvault_operations_in_flight",
			Help: "Store/share operations currently running",
		}),

		BlockNumber: f.NewGauge(prometheus.GaugeOpts{
			Name: "identityvault_chain_block_number",
			Help: "Latest block number reported by the ledger",
		}),

		GasPriceGwei: f.NewGauge(prometheus.GaugeOpts{
			Name: "identityvault_chain_gas_price_gwei",
			Help: "Latest gas price reported by the ledger",
		}),

		RefreshErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identityvault_refresh_errors_total",
			Help: "Failed background refreshes by error code",
		}, []string{"code"}),
	}
}

// OnTransition implements orchestrator.TransitionHook.
func (m *Metrics) OnTransition(_ context.Context, t orchestrator.Transition) {
	if m == nil {
		return
	}
	kind := string(t.Kind)
	if t.From == orchestrator.StateIdle {
		m.InFlight.Inc()
	}
	m.StateReached.WithLabelValues(kind, string(t.To)).Observe(t.Elapsed.Seconds())
	if !t.To.Terminal() {
		return
	}
	m.InFlight.Dec()
	code := ""
	if t.Err != nil {
		code = string(dErrors.CodeOf(t.Err))
	}
	m.Operations.WithLabelValues(kind, string(t.To), code).Inc()
}

// ObserveNetwork records the latest chain head and gas price.
func (m *Metrics) ObserveNetwork(blockNumber uint64, gasPriceGwei float64) {
	if m != nil {
		m.BlockNumber.Set(float64(blockNumber))
		m.GasPriceGwei.Set(gasPriceGwei)
	}
}

// IncrementRefreshError records a failed background refresh.
func (m *Metrics) IncrementRefreshError(err error) {
	if m != nil {
		m.RefreshErrors.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	}
}
