package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/orderdeck/api/internal/payments"
	"github.com/orderdeck/api/internal/platform/httpx"
	"github.com/orderdeck/api/internal/services"
)

const (
	maxWebhookBodyBytes      = 256 * 1024
	stripeSignatureHeader    = "Stripe-Signature"
	webhookStatusAcknowledge = "acknowledged"
	webhookStatusIgnored     = "ignored"
)

// WebhookHandlers receives payment gateway callbacks and applies the
// translated signal to the order.
type WebhookHandlers struct {
	translator *payments.WebhookTranslator
	orders     services.OrderService
	logger     *zap.Logger
}

// NewWebhookHandlers wires the gateway webhook endpoint.
func NewWebhookHandlers(translator *payments.WebhookTranslator, orders services.OrderService, logger *zap.Logger) *WebhookHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandlers{translator: translator, orders: orders, logger: logger}
}

// Routes registers the webhook endpoints. Gateway callbacks authenticate via
// the signed payload, not Firebase tokens.
func (h *WebhookHandlers) Routes(r chi.Router) {
	r.Post("/stripe", h.handleStripeWebhook)
}

type webhookResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
}

func (h *WebhookHandlers) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.translator == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "webhook pipeline is not configured", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook payload", http.StatusBadRequest))
		return
	}

	cmd, err := h.translator.Translate(payload, r.Header.Get(stripeSignatureHeader))
	switch {
	case errors.Is(err, payments.ErrWebhookIgnored):
		writeJSONResponse(w, http.StatusOK, webhookResponse{Status: webhookStatusIgnored})
		return
	case errors.Is(err, payments.ErrWebhookSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	case errors.Is(err, payments.ErrWebhookPayload):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook payload is malformed", http.StatusBadRequest))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		return
	}

	if _, err := h.orders.ApplyPaymentSignal(ctx, cmd); err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			// Acknowledge so the gateway stops retrying an event we can
			// never apply.
			h.logger.Warn("payment signal for unknown order",
				zap.String("orderId", cmd.OrderID),
				zap.String("reference", cmd.Reference))
			writeJSONResponse(w, http.StatusOK, webhookResponse{Status: webhookStatusIgnored, OrderID: cmd.OrderID})
			return
		}
		h.logger.Error("payment signal apply failed",
			zap.String("orderId", cmd.OrderID),
			zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to apply payment signal", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{Status: webhookStatusAcknowledge, OrderID: cmd.OrderID})
}
