package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"ticket-core/internal/gateway"
	"ticket-core/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type WebhookHandler struct {
	app      *pocketbase.PocketBase
	webhooks *services.WebhookService
	gateway  gateway.Gateway
}

func NewWebhookHandler(app *pocketbase.PocketBase, webhooks *services.WebhookService, gw gateway.Gateway) *WebhookHandler {
	return &WebhookHandler{
		app:      app,
		webhooks: webhooks,
		gateway:  gw,
	}
}

// HandlePaymentWebhook ingests the gateway's at-least-once payment
// notifications. Duplicates and integrity failures are acked with 200 so the
// gateway stops retrying; only an unverifiable signature is refused.
func (h *WebhookHandler) HandlePaymentWebhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", err)
	}
	e.Request.Body = io.NopCloser(bytes.NewReader(body))

	signature := e.Request.Header.Get("X-Signature")
	if !h.gateway.VerifySignature(body, signature) {
		slog.Error("webhook signature rejected", "remote", e.RealIP())
		return apis.NewUnauthorizedError("Invalid signature", nil)
	}

	var event gateway.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apis.NewBadRequestError("Invalid payload", err)
	}
	if event.PaymentID == "" || event.OrderID == "" {
		return apis.NewBadRequestError("Missing payment or order id", nil)
	}
	ctx := e.Request.Context()

	result, err := h.webhooks.Apply(ctx, event.PaymentID, event.OrderID, event.Outcome, event.Amount)
	if err != nil {
		slog.Error("webhook apply failed", "payment_id", event.PaymentID, "order_id", event.OrderID, "error", err)
		return apis.NewInternalServerError("internal error", err)
	}

	if result == services.ResultConfirmed {
		if order, err := h.webhooks.Orders.Get(ctx, event.OrderID); err == nil {
			projectOrder(ctx, h.app, order)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"result": string(result)})
}
