// Package orchestrator owns the confirm-then-verify state machine for identity
// writes. An operation is only reported as confirmed once the ledger has mined
// the transaction and a later read observes the intended change.
package orchestrator

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"identityvault/internal/identity/cache"
	"identityvault/internal/identity/models"
	"identityvault/internal/identity/store"
	"identityvault/internal/ledger"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
)

//go:generate mockgen -source=orchestrator.go -destination=mocks/mocks.go -package=mocks

// Gateway is the contract surface the orchestrator drives.
type Gateway interface {
	SubmitStore(ctx context.Context, signer ledger.Signer, identityHash, sourceChain string) (*ledger.TxHandle, error)
	SubmitShare(ctx context.Context, signer ledger.Signer, recipient string) (*ledger.TxHandle, error)
	AwaitConfirmation(ctx context.Context, handle *ledger.TxHandle) (*ledger.Receipt, error)
	ReadIdentity(ctx context.Context, address string) (*models.LedgerIdentity, error)
}

// Notifier receives terminal notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// TransitionHook observes every state change.
type TransitionHook interface {
	OnTransition(ctx context.Context, t Transition)
}

const (
	DefaultStoreSettleDelay = 2 * time.Second
	DefaultShareSettleDelay = time.Second
)

// Orchestrator is safe for concurrent use. Operations on distinct addresses
// run independently; at most one runs per address.
type Orchestrator struct {
	gateway  Gateway
	store    store.Store
	cache    cache.ViewCache
	notifier Notifier
	hooks    []TransitionHook
	logger   *slog.Logger
	tracer   trace.Tracer

	storeSettle time.Duration
	shareSettle time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]*Operation
	started  [commitShards]uint64 // guarded by mu

	// commit serializes cache and store writes derived from a ledger read,
	// sharded by address.
	commit [commitShards]sync.Mutex
}

const commitShards = 64

func shardOf(addr string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return int(h.Sum32() % commitShards)
}

type Option func(*Orchestrator)

func WithSettleDelays(afterStore, afterShare time.Duration) Option {
	return func(o *Orchestrator) {
		o.storeSettle = afterStore
		o.shareSettle = afterShare
	}
}

// WithSleep replaces the settle-delay wait. Tests use it to avoid real sleeps.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

func WithTransitionHooks(hooks ...TransitionHook) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, hooks...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func New(gateway Gateway, st store.Store, viewCache cache.ViewCache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:     gateway,
		store:       st,
		cache:       viewCache,
		logger:      slog.Default(),
		tracer:      otel.Tracer("identityvault/orchestrator"),
		storeSettle: DefaultStoreSettleDelay,
		shareSettle: DefaultShareSettleDelay,
		sleep:       sleepContext,
		now:         time.Now,
		inflight:    make(map[string]*Operation),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Store binds intent.IdentityHash to intent.Address on chain, then verifies
// and reconciles the local record.
func (o *Orchestrator) Store(ctx context.Context, signer ledger.Signer, intent StoreIntent) (*Result, error) {
	if strings.TrimSpace(intent.Address) == "" || strings.TrimSpace(intent.SourceChain) == "" || strings.TrimSpace(intent.IdentityHash) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Please fill in all required fields.")
	}
	addr, err := o.checkSigner(signer, intent.Address)
	if err != nil {
		return nil, err
	}

	run := &run{
		kind:   KindStore,
		settle: o.storeSettle,
		submit: func(ctx context.Context) (*ledger.TxHandle, error) {
			return o.gateway.SubmitStore(ctx, signer, intent.IdentityHash, intent.SourceChain)
		},
		verify: func(view *models.LedgerIdentity) error {
			if view.Empty() {
				return dErrors.New(dErrors.CodeVerificationFailed, "identity not found after storing")
			}
			if view.IdentityHash != intent.IdentityHash {
				return dErrors.New(dErrors.CodeVerificationFailed, "ledger shows a different identity hash after storing")
			}
			return nil
		},
		patch: func(view *models.LedgerIdentity, now time.Time) models.IdentityPatch {
			return models.IdentityPatch{
				IdentityHash:    models.Ptr(view.IdentityHash),
				SourceChain:     models.Ptr(view.SourceChain),
				IsShared:        models.Ptr(view.IsShared),
				ImportedFrom:    intent.ImportedFrom,
				LastConfirmedAt: models.Ptr(now),
				FromLedger:      true,
			}
		},
	}
	return o.execute(ctx, addr, run)
}

// Share shares intent.Address's identity with intent.Recipient.
func (o *Orchestrator) Share(ctx context.Context, signer ledger.Signer, intent ShareIntent) (*Result, error) {
	if strings.TrimSpace(intent.Address) == "" || strings.TrimSpace(intent.Recipient) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Please fill in all required fields.")
	}
	if !address.IsWellFormed(intent.Recipient) {
		return nil, dErrors.New(dErrors.CodeValidation, "Please enter a valid recipient address.")
	}
	addr, err := o.checkSigner(signer, intent.Address)
	if err != nil {
		return nil, err
	}

	run := &run{
		kind:   KindShare,
		settle: o.shareSettle,
		submit: func(ctx context.Context) (*ledger.TxHandle, error) {
			return o.gateway.SubmitShare(ctx, signer, intent.Recipient)
		},
		verify: func(view *models.LedgerIdentity) error {
			if view.Empty() || !view.IsShared {
				return dErrors.New(dErrors.CodeVerificationFailed, "identity is not shared after the transaction was confirmed")
			}
			return nil
		},
		patch: func(view *models.LedgerIdentity, now time.Time) models.IdentityPatch {
			return models.IdentityPatch{
				IdentityHash:    models.Ptr(view.IdentityHash),
				SourceChain:     models.Ptr(view.SourceChain),
				IsShared:        models.Ptr(true),
				LastConfirmedAt: models.Ptr(now),
				FromLedger:      true,
			}
		},
	}
	return o.execute(ctx, addr, run)
}

func (o *Orchestrator) checkSigner(signer ledger.Signer, intentAddress string) (string, error) {
	addr, err := address.Normalize(intentAddress)
	if err != nil {
		return "", err
	}
	if !signer.Connected() {
		return "", dErrors.New(dErrors.CodeNotConnected, "wallet not connected")
	}
	if address.FromCommon(signer.From) != addr {
		return "", dErrors.New(dErrors.CodeValidation, "intent address does not match the connected signer")
	}
	return addr, nil
}

// run describes one kind of write. execute supplies the shared state machine.
type run struct {
	kind   Kind
	settle time.Duration
	submit func(ctx context.Context) (*ledger.TxHandle, error)
	verify func(view *models.LedgerIdentity) error
	patch  func(view *models.LedgerIdentity, now time.Time) models.IdentityPatch
}

func (o *Orchestrator) execute(ctx context.Context, addr string, r *run) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled before submission")
	}

	op, err := o.acquire(addr, r.kind)
	if err != nil {
		return nil, err
	}
	defer o.release(addr)

	ctx, span := o.tracer.Start(ctx, "orchestrator."+string(r.kind), trace.WithAttributes(
		attribute.String("identity.address", addr),
		attribute.String("operation.id", op.ID),
	))
	defer span.End()

	o.transition(ctx, op, StateSubmitting, nil)
	handle, err := r.submit(ctx)
	if err != nil {
		return nil, o.fail(ctx, span, op, err)
	}

	// Past this point the transaction is on the network and cannot be
	// abandoned.
	ctx = context.WithoutCancel(ctx)
	o.setTxHash(op, handle.Hash.Hex())
	span.SetAttributes(attribute.String("tx.hash", op.TxHash))

	o.transition(ctx, op, StateAwaitingConfirmation, nil)
	receipt, err := o.gateway.AwaitConfirmation(ctx, handle)
	if err != nil {
		return nil, o.fail(ctx, span, op, err)
	}

	o.transition(ctx, op, StateInvalidating, nil)
	commit := &o.commit[shardOf(addr)]
	if o.cache != nil {
		commit.Lock()
		err := o.cache.Invalidate(ctx, addr)
		commit.Unlock()
		if err != nil {
			o.logger.WarnContext(ctx, "failed to invalidate ledger view cache",
				"address", addr,
				"operation_id", op.ID,
				"error", err,
			)
		}
	}
	if err := o.sleep(ctx, r.settle); err != nil {
		return nil, o.fail(ctx, span, op, dErrors.Wrap(err, dErrors.CodeTimeout, "settle delay interrupted"))
	}

	o.transition(ctx, op, StateReverifying, nil)
	view, err := o.gateway.ReadIdentity(ctx, addr)
	if err != nil {
		return nil, o.fail(ctx, span, op, err)
	}
	if err := r.verify(view); err != nil {
		return nil, o.fail(ctx, span, op, err)
	}

	commit.Lock()
	if o.cache != nil {
		if err := o.cache.Put(ctx, view); err != nil {
			o.logger.WarnContext(ctx, "failed to cache ledger view", "address", addr, "error", err)
		}
	}
	rec, _, err := o.store.Upsert(ctx, addr, r.patch(view, o.now()))
	commit.Unlock()
	if err != nil {
		// The ledger is authoritative and already reflects the write; the next
		// refresh reconciles the local record.
		o.logger.ErrorContext(ctx, "failed to reconcile local identity record",
			"address", addr,
			"operation_id", op.ID,
			"error", err,
		)
		rec = nil
	}

	o.transition(ctx, op, StateConfirmed, nil)
	span.SetStatus(codes.Ok, "")
	o.notify(ctx, op, OutcomeConfirmed, nil, rec)

	return &Result{Operation: o.snapshot(op), Receipt: receipt, View: view, Identity: rec}, nil
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, op *Operation, err error) error {
	o.transition(ctx, op, StateFailed, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	o.notify(ctx, op, OutcomeFailed, err, nil)
	return err
}

func (o *Orchestrator) acquire(addr string, kind Kind) (*Operation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, busy := o.inflight[addr]; busy {
		return nil, dErrors.Newf(dErrors.CodeOperationInProgress,
			"a %s operation for %s is already %s", cur.Kind, addr, cur.State)
	}
	now := o.now()
	op := &Operation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Address:   addr,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
	o.inflight[addr] = op
	o.started[shardOf(addr)]++
	return op, nil
}

// observe records whether an operation is in flight for addr and how many
// have started on its shard, before a ledger read.
func (o *Orchestrator) observe(addr string) (started uint64, busy bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy = o.inflight[addr]
	return o.started[shardOf(addr)], busy
}

// quietSince reports whether no operation for addr's shard started since
// observe returned started and none is in flight now.
func (o *Orchestrator) quietSince(addr string, started uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inflight[addr]
	return !busy && o.started[shardOf(addr)] == started
}

func (o *Orchestrator) release(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, addr)
}

func (o *Orchestrator) setTxHash(op *Operation, hash string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	op.TxHash = hash
}

func (o *Orchestrator) snapshot(op *Operation) Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return *op
}

func (o *Orchestrator) transition(ctx context.Context, op *Operation, to State, err error) {
	o.mu.Lock()
	from := op.State
	now := o.now()
	op.State = to
	op.UpdatedAt = now
	t := Transition{
		OperationID: op.ID,
		Kind:        op.Kind,
		Address:     op.Address,
		From:        from,
		To:          to,
		TxHash:      op.TxHash,
		At:          now,
		Elapsed:     now.Sub(op.StartedAt),
		Err:         err,
	}
	o.mu.Unlock()

	attrs := []any{
		"operation_id", t.OperationID,
		"kind", t.Kind,
		"address", t.Address,
		"from", t.From,
		"to", t.To,
	}
	if t.TxHash != "" {
		attrs = append(attrs, "tx_hash", t.TxHash)
	}
	if err != nil {
		attrs = append(attrs, "error", err, "error_code", dErrors.CodeOf(err))
		o.logger.WarnContext(ctx, "identity operation transition", attrs...)
	} else {
		o.logger.DebugContext(ctx, "identity operation transition", attrs...)
	}

	for _, h := range o.hooks {
		h.OnTransition(ctx, t)
	}
}

func (o *Orchestrator) notify(ctx context.Context, op *Operation, outcome Outcome, err error, rec *models.IdentityRecord) {
	snap := o.snapshot(op)
	n := Notification{
		OperationID: snap.ID,
		Kind:        snap.Kind,
		Address:     snap.Address,
		Outcome:     outcome,
		TxHash:      snap.TxHash,
		Identity:    rec,
		At:          o.now(),
	}
	if err != nil {
		n.ErrorCode = dErrors.CodeOf(err)
		n.Message = dErrors.UserMessage(err)
	} else if snap.Kind == KindShare {
		n.Message = "Identity shared successfully."
	} else {
		n.Message = "Identity stored successfully."
	}
	if o.notifier != nil {
		o.notifier.Notify(ctx, n)
	}
}

// Status returns the in-flight operation for address, if any.
func (o *Orchestrator) Status(addr string) (Operation, bool, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return Operation{}, false, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	op, ok := o.inflight[key]
	if !ok {
		return Operation{}, false, nil
	}
	return *op, true, nil
}

// Identity returns the ledger view for address, served from cache when
// possible.
func (o *Orchestrator) Identity(ctx context.Context, addr string) (*models.LedgerIdentity, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		view, ok, err := o.cache.Get(ctx, key)
		if err != nil {
			o.logger.WarnContext(ctx, "ledger view cache read failed", "address", key, "error", err)
		} else if ok {
			return view, nil
		}
	}
	return o.readThrough(ctx, key, false)
}

// Refresh re-reads the ledger and reconciles the cache and the local record.
// The reconcile is skipped when an operation for address was in flight or
// started while the read was outstanding, since its view may be stale.
func (o *Orchestrator) Refresh(ctx context.Context, addr string) (*models.LedgerIdentity, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, err
	}
	return o.readThrough(ctx, key, true)
}

func (o *Orchestrator) readThrough(ctx context.Context, key string, reconcile bool) (*models.LedgerIdentity, error) {
	started, busy := o.observe(key)
	view, err := o.gateway.ReadIdentity(ctx, key)
	if err != nil {
		return nil, err
	}
	if busy || (o.cache == nil && !reconcile) {
		return view, nil
	}

	commit := &o.commit[shardOf(key)]
	commit.Lock()
	defer commit.Unlock()
	if !o.quietSince(key, started) {
		o.logger.DebugContext(ctx, "ledger view superseded by an operation, not reconciling", "address", key)
		return view, nil
	}
	if o.cache != nil {
		if err := o.cache.Put(ctx, view); err != nil {
			o.logger.WarnContext(ctx, "failed to cache ledger view", "address", key, "error", err)
		}
	}
	if !reconcile || view.Empty() {
		return view, nil
	}
	patch := models.IdentityPatch{
		IdentityHash: models.Ptr(view.IdentityHash),
		SourceChain:  models.Ptr(view.SourceChain),
		IsShared:     models.Ptr(view.IsShared),
		FromLedger:   true,
	}
	if _, _, err := o.store.Upsert(ctx, key, patch); err != nil {
		o.logger.WarnContext(ctx, "failed to reconcile local identity record", "address", key, "error", err)
	}
	return view, nil
}
