// Package poller keeps ledger views for watched addresses and the network
// status snapshot fresh in the background.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"identityvault/internal/identity/models"
	"identityvault/internal/ledger"
	"identityvault/pkg/address"
)

// Refresher re-reads the ledger for one address and reconciles local state.
type Refresher interface {
	Refresh(ctx context.Context, address string) (*models.LedgerIdentity, error)
}

// NetworkSource reports live network status.
type NetworkSource interface {
	NetworkStatus(ctx context.Context) (*ledger.NetworkStatus, error)
}

// Observer receives poll results. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveNetwork(blockNumber uint64, gasPriceGwei float64)
	IncrementRefreshError(err error)
}

type Poller struct {
	refresher Refresher
	network   NetworkSource
	interval  time.Duration
	logger    *slog.Logger
	observer  Observer

	mu       sync.RWMutex
	watch    []string
	status   *ledger.NetworkStatus
	statusAt time.Time
	now      func() time.Time
}

type Option func(*Poller)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// New creates a poller. Invalid watch addresses are dropped with a warning.
func New(refresher Refresher, network NetworkSource, interval time.Duration, watch []string, opts ...Option) *Poller {
	p := &Poller{
		refresher: refresher,
		network:   network,
		interval:  interval,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, w := range watch {
		key, err := address.Normalize(w)
		if err != nil {
			p.logger.Warn("ignoring invalid watch address", "address", w, "error", err)
			continue
		}
		p.watch = append(p.watch, key)
	}
	return p
}

// Watch adds address to the refresh set.
func (p *Poller) Watch(addr string) error {
	key, err := address.Normalize(addr)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.watch {
		if w == key {
			return nil
		}
	}
	p.watch = append(p.watch, key)
	return nil
}

// Run polls once immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PollOnce refreshes the network snapshot and every watched address. Failures
// are logged and counted; the next tick tries again.
func (p *Poller) PollOnce(ctx context.Context) {
	if status, err := p.network.NetworkStatus(ctx); err != nil {
		p.logger.WarnContext(ctx, "network status poll failed", "error", err)
		p.refreshFailed(err)
	} else {
		p.mu.Lock()
		p.status = status
		p.statusAt = p.now()
		p.mu.Unlock()
		p.observe(status)
	}

	p.mu.RLock()
	watch := append([]string(nil), p.watch...)
	p.mu.RUnlock()

	for _, addr := range watch {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.refresher.Refresh(ctx, addr); err != nil {
			p.logger.WarnContext(ctx, "identity refresh failed", "address", addr, "error", err)
			p.refreshFailed(err)
		}
	}
}

func (p *Poller) refreshFailed(err error) {
	if p.observer != nil {
		p.observer.IncrementRefreshError(err)
	}
}

func (p *Poller) observe(s *ledger.NetworkStatus) {
	if p.observer != nil {
		p.observer.ObserveNetwork(s.BlockNumber, s.GasPriceGwei)
	}
}

// NetworkStatus serves the last snapshot while it is younger than one poll
// interval and falls back to a live query otherwise.
func (p *Poller) NetworkStatus(ctx context.Context) (*ledger.NetworkStatus, error) {
	p.mu.RLock()
	status, at := p.status, p.statusAt
	p.mu.RUnlock()
	if status != nil && p.now().Sub(at) < p.interval {
		out := *status
		return &out, nil
	}
	return p.network.NetworkStatus(ctx)
}
