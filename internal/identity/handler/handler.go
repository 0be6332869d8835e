package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"identityvault/internal/identity/importer"
	"identityvault/internal/identity/journal"
	"identityvault/internal/identity/models"
	"identityvault/internal/identity/orchestrator"
	"identityvault/internal/ledger"
	"identityvault/internal/platform/middleware"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
	"identityvault/pkg/platform/httputil"
	"identityvault/pkg/requestcontext"
)

const readTimeout = 10 * time.Second

// RecordService is the secondary store API.
type RecordService interface {
	Get(ctx context.Context, address string) (*models.IdentityRecord, error)
	Save(ctx context.Context, patch models.IdentityPatch) (*models.IdentityRecord, bool, error)
}

// Orchestrator runs chain writes and serves ledger reads.
type Orchestrator interface {
	Store(ctx context.Context, signer ledger.Signer, intent orchestrator.StoreIntent) (*orchestrator.Result, error)
	Share(ctx context.Context, signer ledger.Signer, intent orchestrator.ShareIntent) (*orchestrator.Result, error)
	Identity(ctx context.Context, address string) (*models.LedgerIdentity, error)
	Status(address string) (orchestrator.Operation, bool, error)
}

// Importer looks up and commits foreign identities.
type Importer interface {
	LookupForeignIdentity(ctx context.Context, sourceAddress, sourceChain, identityType string) (*importer.PendingImport, error)
	Import(ctx context.Context, signer ledger.Signer, pending *importer.PendingImport) (*orchestrator.Result, error)
}

// NetworkReporter supplies the network status snapshot.
type NetworkReporter interface {
	NetworkStatus(ctx context.Context) (*ledger.NetworkStatus, error)
}

// HistoryReader lists journaled transitions for an address.
type HistoryReader interface {
	History(ctx context.Context, address string, limit int) ([]journal.Entry, error)
}

// Handler serves the identity HTTP API.
type Handler struct {
	logger       *slog.Logger
	records      RecordService
	orchestrator Orchestrator
	importer     Importer
	network      NetworkReporter
	history      HistoryReader
	signer       ledger.Signer
	jwtValidator middleware.JWTValidator
}

// New creates a new identity Handler. signer is the operator account chain
// writes are sent from; a zero signer makes those routes answer 503. history
// may be nil, in which case the history route is not registered.
func New(
	records RecordService,
	orch Orchestrator,
	imp Importer,
	network NetworkReporter,
	history HistoryReader,
	signer ledger.Signer,
	jwtValidator middleware.JWTValidator,
	logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		records:      records,
		orchestrator: orch,
		importer:     imp,
		network:      network,
		history:      history,
		signer:       signer,
		jwtValidator: jwtValidator,
	}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Timeout(readTimeout))
		r.Get("/api/identity/{address}", h.handleGetIdentity)
		r.Post("/api/identity", h.handleSaveIdentity)
		r.Post("/api/identity/import", h.handleDescribeImport)
		r.Get("/api/chain/identity/{address}", h.handleGetLedgerIdentity)
		r.Get("/api/chain/operations/{address}", h.handleGetOperation)
		r.Get("/api/network/status", h.handleNetworkStatus)
		if h.history != nil {
			r.Get("/api/chain/operations/{address}/history", h.handleOperationHistory)
		}
	})

	// Chain writes block until the transaction is mined and verified, so they
	// carry no handler timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/api/chain/identity", h.handleChainStore)
		r.Post("/api/chain/identity/share", h.handleChainShare)
		r.Post("/api/chain/identity/import", h.handleChainImport)
	})
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rec, err := h.records.Get(ctx, chi.URLParam(r, "address"))
	if err != nil {
		h.logFailure(ctx, "failed to get identity", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleSaveIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SaveIdentityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, created, err := h.records.Save(ctx, req.toPatch())
	if err != nil {
		h.logFailure(ctx, "failed to save identity", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, rec)
}

func (h *Handler) handleDescribeImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ImportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	desc, err := importer.Describe(req.SourceChain, req.SourceAddress, req.IdentityType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, desc)
}

func (h *Handler) handleGetLedgerIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	view, err := h.orchestrator.Identity(ctx, chi.URLParam(r, "address"))
	if err != nil {
		h.logFailure(ctx, "failed to read ledger identity", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	if view.Empty() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "No identity stored on chain for this address"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, busy, err := h.orchestrator.Status(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !busy {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "No operation in progress for this address"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, op)
}

func (h *Handler) handleOperationHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	entries, err := h.history.History(ctx, chi.URLParam(r, "address"), limit)
	if err != nil {
		h.logFailure(ctx, "failed to list operation history", middleware.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.network.NetworkStatus(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to get network status", middleware.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleChainStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChainStoreRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if !h.requireSigner(w) {
		return
	}

	res, err := h.orchestrator.Store(ctx, h.signer, orchestrator.StoreIntent{
		Address:      h.operatorAddress(),
		IdentityHash: req.IdentityHash,
		SourceChain:  req.SourceChain,
	})
	if err != nil {
		h.logFailure(ctx, "chain store failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOperationResponse(res, "Identity stored successfully."))
}

func (h *Handler) handleChainShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChainShareRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if !h.requireSigner(w) {
		return
	}

	res, err := h.orchestrator.Share(ctx, h.signer, orchestrator.ShareIntent{
		Address:   h.operatorAddress(),
		Recipient: req.Recipient,
	})
	if err != nil {
		h.logFailure(ctx, "chain share failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOperationResponse(res, "Identity shared successfully."))
}

func (h *Handler) handleChainImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ImportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pending, err := h.importer.LookupForeignIdentity(ctx, req.SourceAddress, req.SourceChain, req.IdentityType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !h.requireSigner(w) {
		return
	}

	res, err := h.importer.Import(ctx, h.signer, pending)
	if err != nil {
		h.logFailure(ctx, "chain import failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	out := toOperationResponse(res, "Identity imported successfully.")
	out.Import = req
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) requireSigner(w http.ResponseWriter) bool {
	if !h.signer.Connected() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotConnected, "No operator account is configured"))
		return false
	}
	return true
}

func (h *Handler) operatorAddress() string {
	return address.FromCommon(h.signer.From)
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	attrs := []any{"request_id", requestID, "error", err}
	if sub := requestcontext.Subject(ctx); sub != "" {
		attrs = append(attrs, "subject", sub)
	}
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, attrs...)
		return
	}
	h.logger.ErrorContext(ctx, msg, attrs...)
}
