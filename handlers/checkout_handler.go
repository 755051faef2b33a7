package handlers

import (
	"net/http"

	"ticket-core/models"
	"ticket-core/services"

	"github.com/go-playground/validator/v10"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CheckoutHandler struct {
	app      *pocketbase.PocketBase
	checkout *services.CheckoutService
	validate *validator.Validate
}

func NewCheckoutHandler(app *pocketbase.PocketBase, checkout *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		app:      app,
		checkout: checkout,
		validate: validator.New(),
	}
}

type initiateRequest struct {
	ReservationID string `json:"reservation_id" validate:"required"`
	Buyer         struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
		Phone string `json:"phone"`
	} `json:"buyer" validate:"required"`
}

// InitiateCheckout consumes the caller's reservation and opens an order. The
// response carries either gateway client params (payment due) or the issued
// credentials (zero-total order confirmed immediately).
func (h *CheckoutHandler) InitiateCheckout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req initiateRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	buyer := models.BuyerDetails{
		Name:  req.Buyer.Name,
		Email: req.Buyer.Email,
		Phone: req.Buyer.Phone,
	}

	result, err := h.checkout.Initiate(ctx, req.ReservationID, e.Auth.Id, buyer)
	if err != nil {
		// A pending order may still exist when the gateway call failed; keep
		// its projection before reporting the failure.
		if result != nil && result.Order != nil {
			projectOrder(ctx, h.app, result.Order)
		}
		return respondError(e, err)
	}

	projectOrder(ctx, h.app, result.Order)
	if len(result.Credentials) > 0 {
		projectCredentials(ctx, h.app, result.Credentials)
	}

	response := map[string]any{
		"order_id": result.Order.ID,
		"status":   result.Order.Status,
		"total":    result.Order.Total.StringFixed(2),
		"currency": result.Order.Currency,
	}
	if result.Intent != nil {
		response["payment_intent"] = result.Intent
	}
	if len(result.Credentials) > 0 {
		response["credentials"] = credentialPayloads(result.Credentials)
	}

	return e.JSON(http.StatusOK, response)
}

// CancelOrder abandons a draft or pending order and returns its units.
func (h *CheckoutHandler) CancelOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	ctx := e.Request.Context()
	orderID := e.Request.PathValue("orderId")

	order, err := h.checkout.Orders.Get(ctx, orderID)
	if err != nil {
		return respondError(e, err)
	}
	if order.CustomerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	if err := h.checkout.Cancel(ctx, orderID, "user_cancelled"); err != nil {
		return respondError(e, err)
	}

	order.Status = models.OrderCancelled
	projectOrder(ctx, h.app, order)

	return e.JSON(http.StatusOK, map[string]any{"message": "Order cancelled"})
}

// GetOrderHistory lists the caller's orders from the durable projection.
func (h *CheckoutHandler) GetOrderHistory(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	records, err := h.app.FindRecordsByFilter(
		"orders",
		"customer_id = {:customerId}",
		"-created",
		50,
		0,
		map[string]any{"customerId": e.Auth.Id},
	)
	if err != nil {
		return apis.NewBadRequestError("Failed to get orders", err)
	}

	history := make([]map[string]any, 0, len(records))
	for _, record := range records {
		history = append(history, map[string]any{
			"order_id": record.GetString("order_id"),
			"event_id": record.GetString("event_id"),
			"total":    record.GetString("total"),
			"currency": record.GetString("currency"),
			"status":   record.GetString("status"),
			"created":  record.GetDateTime("created").Time(),
		})
	}

	return e.JSON(http.StatusOK, history)
}

func credentialPayloads(credentials []models.Credential) []map[string]any {
	out := make([]map[string]any, 0, len(credentials))
	for _, credential := range credentials {
		out = append(out, map[string]any{
			"credential_id": credential.ID,
			"tier_id":       credential.TierID,
			"unit_id":       credential.TicketUnitID,
			"qr_payload":    credential.Payload,
		})
	}
	return out
}
