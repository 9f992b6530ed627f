package recon

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"bundlemart/internal/common/api"
	"bundlemart/internal/common/database"
)

// SignatureHeader carries the gateway's hex HMAC-SHA512 of the body.
const SignatureHeader = "X-Signature"

// maxWebhookBody caps how much of a webhook body is read.
const maxWebhookBody = 1 << 20

// WebhookHandler adapts the reconciliation service to the gateway's
// webhook HTTP contract.
type WebhookHandler struct {
	service *Service
	logger  *slog.Logger
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(service *Service, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// ServeHTTP reads the raw body before any parsing, because the signature
// covers the exact bytes the gateway sent.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.BadRequest(w, "unable to read request body")
		return
	}

	result, err := h.service.ProcessWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, ErrSignature):
			api.WriteError(w, http.StatusUnauthorized, api.ErrCodeSignature, "invalid signature")
		case errors.Is(err, ErrFraud):
			api.WriteError(w, http.StatusBadRequest, api.ErrCodeFraud, "amount mismatch")
		case database.IsNotFound(err):
			api.NotFound(w, "unknown transaction reference")
		default:
			h.logger.Error("webhook processing failed", "error", err)
			api.InternalError(w, "webhook processing failed")
		}
		return
	}

	api.WriteData(w, http.StatusOK, result)
}
