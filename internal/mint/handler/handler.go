// Package handler exposes the mint service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mintledger/internal/addressing"
	"mintledger/internal/factory"
	"mintledger/internal/item"
	"mintledger/internal/mint/models"
	runtimemodels "mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/platform/httputil"
	"mintledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,AuditReader

const maxJournalLimit = 200

// Service defines the mint operations served over HTTP.
type Service interface {
	Configure(ctx context.Context, owner domain.Address, value domain.Amount, content []byte, price domain.Amount) (*models.Receipt, error)
	Promote(ctx context.Context, factoryAddr domain.Address, value domain.Amount, contentRef []byte) (*models.Minted, error)
	Withdraw(ctx context.Context, factoryAddr domain.Address, value domain.Amount) (*models.Receipt, error)
	TransferItem(ctx context.Context, itemAddr domain.Address, value domain.Amount, req models.TransferRequest) (*models.Receipt, error)
	FactoryData(ctx context.Context, factoryAddr domain.Address) (factory.Data, error)
	ItemData(ctx context.Context, itemAddr domain.Address) (item.Data, error)
	ItemAt(ctx context.Context, factoryAddr domain.Address, index uint64) (domain.Address, error)
	Balance(ctx context.Context, addr domain.Address) (domain.Amount, error)
	Account(ctx context.Context, addr domain.Address, limit int) (*models.AccountView, error)
	Fund(ctx context.Context, addr domain.Address, amount domain.Amount) (*runtimemodels.Transaction, error)
}

// AuditReader lists recorded audit events.
type AuditReader interface {
	List(ctx context.Context, subject string) ([]audit.Event, error)
}

// Handler wires mint endpoints to the mint service.
type Handler struct {
	service Service
	audit   AuditReader
	logger  *slog.Logger
}

// New constructs a mint handler. audit may be nil, which disables the audit endpoint.
func New(service Service, audit AuditReader, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		audit:   audit,
		logger:  logger,
	}
}

// RegisterCommands mounts the endpoints that submit messages on behalf of the
// authenticated sender.
func (h *Handler) RegisterCommands(r chi.Router) {
	r.Post("/factories", h.HandleConfigure)
	r.Post("/factories/{address}/promote", h.HandlePromote)
	r.Post("/factories/{address}/withdraw", h.HandleWithdraw)
	r.Post("/items/{address}/transfer", h.HandleTransfer)
}

// RegisterQueries mounts read-only endpoints.
func (h *Handler) RegisterQueries(r chi.Router) {
	r.Get("/factories/{address}", h.HandleGetFactory)
	r.Get("/factories/{address}/items/{index}", h.HandleGetItemAddress)
	r.Get("/items/{address}", h.HandleGetItem)
	r.Get("/accounts/{address}", h.HandleGetAccount)
	if h.audit != nil {
		r.Get("/audit/{subject}", h.HandleListAudit)
	}
}

// RegisterFaucet mounts the funding endpoint. Callers guard it with the admin token.
func (h *Handler) RegisterFaucet(r chi.Router) {
	r.Post("/accounts/{address}/fund", h.HandleFund)
}

// HandleConfigure handles POST /v1/factories. The owner defaults to the sender.
func (h *Handler) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ConfigureRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	owner := req.OwnerOr(requestcontext.Sender(ctx))
	receipt, err := h.service.Configure(ctx, owner, req.ParsedValue(), req.Content, req.ParsedPrice())
	if err != nil {
		h.fail(ctx, w, "configure", err)
		return
	}
	target := addressing.ForFactory(owner)
	h.logger.InfoContext(ctx, "factory configure submitted",
		"request_id", requestID,
		"factory", target.String(),
		"success", receipt.Success,
		"exit_code", receipt.Code,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(target, receipt))
}

// HandlePromote handles POST /v1/factories/{address}/promote.
func (h *Handler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PromoteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	minted, err := h.service.Promote(ctx, addr, req.ParsedValue(), req.ContentRef)
	if err != nil {
		h.fail(ctx, w, "promote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMintResponse(addr, minted))
}

// HandleWithdraw handles POST /v1/factories/{address}/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[WithdrawRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	receipt, err := h.service.Withdraw(ctx, addr, req.ParsedValue())
	if err != nil {
		h.fail(ctx, w, "withdraw", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(addr, receipt))
}

// HandleTransfer handles POST /v1/items/{address}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	receipt, err := h.service.TransferItem(ctx, addr, req.ParsedValue(), req.Parsed())
	if err != nil {
		h.fail(ctx, w, "transfer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(addr, receipt))
}

// HandleFund handles POST /v1/accounts/{address}/fund.
func (h *Handler) HandleFund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FundRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	tx, err := h.service.Fund(ctx, addr, req.ParsedAmount())
	if err != nil {
		h.fail(ctx, w, "fund", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &FundResponse{
		Address: addr,
		TxID:    tx.ID,
		Amount:  tx.Value,
		Balance: tx.BalanceAfter,
	})
}

// HandleGetFactory handles GET /v1/factories/{address}.
func (h *Handler) HandleGetFactory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	data, err := h.service.FactoryData(ctx, addr)
	if err != nil {
		h.fail(ctx, w, "get_factory", err)
		return
	}
	balance, err := h.service.Balance(ctx, addr)
	if err != nil {
		h.fail(ctx, w, "get_factory", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toFactoryResponse(addr, data, balance))
}

// HandleGetItemAddress handles GET /v1/factories/{address}/items/{index}.
func (h *Handler) HandleGetItemAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "index must be a non-negative integer"))
		return
	}
	itemAddr, err := h.service.ItemAt(ctx, addr, index)
	if err != nil {
		h.fail(ctx, w, "get_item_address", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ItemAddressResponse{Factory: addr, Index: index, Item: itemAddr})
}

// HandleGetItem handles GET /v1/items/{address}.
func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	data, err := h.service.ItemData(ctx, addr)
	if err != nil {
		h.fail(ctx, w, "get_item", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toItemResponse(addr, data))
}

// HandleGetAccount handles GET /v1/accounts/{address}?limit=N.
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxJournalLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 200"))
			return
		}
		limit = n
	}
	view, err := h.service.Account(ctx, addr, limit)
	if err != nil {
		h.fail(ctx, w, "get_account", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleListAudit handles GET /v1/audit/{subject}.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := chi.URLParam(r, "subject")
	if _, err := domain.ParseAddress(subject); err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.audit.List(ctx, subject)
	if err != nil {
		h.fail(ctx, w, "list_audit", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditResponse(subject, events))
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request, param string) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, param))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.Address{}, false
	}
	return addr, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	code := dErrors.CodeOf(err)
	level := slog.LevelWarn
	if code == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "mint request failed",
		"request_id", requestcontext.RequestID(ctx),
		"operation", operation,
		"sender", requestcontext.Sender(ctx).String(),
		"code", code,
		"error", err,
	)
	httputil.WriteError(w, err)
}
