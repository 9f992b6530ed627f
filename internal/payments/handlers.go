package payments

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bundlemart/internal/common/api"
	"bundlemart/internal/common/database"
	"bundlemart/internal/common/middleware"
	"bundlemart/internal/fees"
	"bundlemart/internal/wallet"
)

// Handler serves the payments HTTP surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates the handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the payment endpoints on an existing router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/deposits", h.deposit)
	r.Post("/purchases", h.purchase)
	r.Get("/wallets/{ownerID}", h.wallet)
	r.With(middleware.RequireAdmin).Post("/admin/adjustments", h.adjust)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	resp, err := h.service.InitiateDeposit(r.Context(), req)
	if err != nil {
		var verr *fees.ValidationError
		if errors.As(err, &verr) {
			api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, verr.Error())
			return
		}
		h.logger.Error("initiating deposit", "user_id", req.UserID, "error", err)
		api.InternalError(w, "unable to initiate deposit")
		return
	}

	api.WriteData(w, http.StatusCreated, resp)
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	if req.UserID == "" {
		req.UserID = middleware.GetActorID(r.Context())
	}

	resp, err := h.service.InitiatePurchase(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPhone):
			api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, "invalid recipient phone number")
		case errors.Is(err, wallet.ErrInsufficientFunds):
			api.WriteError(w, http.StatusBadRequest, api.ErrCodeInsufficientFunds, "insufficient wallet balance")
		case errors.Is(err, ErrProductNotFound):
			api.NotFound(w, "product not found")
		case database.IsNotFound(err):
			// Wallet purchases hit this when the buyer has no wallet row.
			api.NotFound(w, "wallet not found")
		default:
			h.logger.Error("initiating purchase", "product_id", req.ProductID, "error", err)
			api.InternalError(w, "unable to initiate purchase")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, resp)
}

func (h *Handler) wallet(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	kind := wallet.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = wallet.KindCustomer
	}

	wlt, err := h.service.Wallet(r.Context(), ownerID, kind)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "wallet not found")
			return
		}
		h.logger.Error("fetching wallet", "owner_id", ownerID, "error", err)
		api.InternalError(w, "unable to fetch wallet")
		return
	}

	api.WriteData(w, http.StatusOK, wlt)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	txn, err := h.service.Adjust(r.Context(), req, middleware.GetActorID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			api.WriteError(w, http.StatusBadRequest, api.ErrCodeInsufficientFunds, "debit exceeds balance")
		case database.IsNotFound(err):
			api.NotFound(w, "wallet not found")
		default:
			h.logger.Error("applying adjustment", "owner_id", req.OwnerID, "error", err)
			api.InternalError(w, "unable to apply adjustment")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, txn)
}
