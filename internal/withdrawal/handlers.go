package withdrawal

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"bundlemart/internal/common/api"
	"bundlemart/internal/common/database"
	"bundlemart/internal/common/middleware"
	"bundlemart/internal/common/money"
	"bundlemart/internal/wallet"
)

// Handler serves the withdrawal HTTP surface.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates the handler.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes mounts the withdrawal endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.With(middleware.RequireAdmin).Patch("/{id}", h.settle)
	r.With(middleware.RequireAdmin).Get("/", h.listPending)
	return r
}

type createRequest struct {
	AmountMinor    int64             `json:"amount_minor" validate:"required,gt=0"`
	Method         string            `json:"method" validate:"required,oneof=bank mobile_money"`
	AccountDetails map[string]string `json:"account_details" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.GetActorID(r.Context())
	if agentID == "" {
		api.Unauthorized(w, "missing user identity")
		return
	}

	var req createRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	withdrawal, err := New(ulid.Make().String(), agentID, req.AmountMinor, req.Method, req.AccountDetails)
	if err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	if err := h.store.Create(r.Context(), withdrawal, money.GHS); err != nil {
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			api.WriteError(w, http.StatusBadRequest, api.ErrCodeInsufficientFunds, "insufficient balance for withdrawal")
		case database.IsNotFound(err):
			api.NotFound(w, "wallet not found")
		default:
			h.logger.Error("creating withdrawal", "agent_id", agentID, "error", err)
			api.InternalError(w, "unable to create withdrawal")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, withdrawal)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	withdrawal, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "withdrawal not found")
			return
		}
		h.logger.Error("fetching withdrawal", "error", err)
		api.InternalError(w, "unable to fetch withdrawal")
		return
	}

	// Agents see only their own requests; admins see all.
	actor := middleware.GetActorID(r.Context())
	if withdrawal.AgentID != actor && middleware.GetActorRole(r.Context()) != "admin" {
		api.NotFound(w, "withdrawal not found")
		return
	}

	api.WriteData(w, http.StatusOK, withdrawal)
}

type settleRequest struct {
	Status           Status  `json:"status" validate:"required,oneof=processing completed rejected"`
	PaymentReference *string `json:"payment_reference,omitempty"`
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	operator := middleware.GetActorID(r.Context())

	withdrawal, err := h.store.Settle(r.Context(), id, req.Status, operator, req.PaymentReference)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotPending):
			api.Conflict(w, "withdrawal already settled")
		case database.IsNotFound(err):
			api.NotFound(w, "withdrawal not found")
		default:
			h.logger.Error("settling withdrawal", "id", id, "error", err)
			api.InternalError(w, "unable to settle withdrawal")
		}
		return
	}

	h.logger.Info("withdrawal settled",
		"id", id,
		"status", req.Status,
		"operator", operator,
	)
	api.WriteData(w, http.StatusOK, withdrawal)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.store.ListPending(r.Context(), 100)
	if err != nil {
		h.logger.Error("listing pending withdrawals", "error", err)
		api.InternalError(w, "unable to list withdrawals")
		return
	}
	api.WriteData(w, http.StatusOK, withdrawals)
}
