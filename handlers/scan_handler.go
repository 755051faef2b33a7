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

type ScanHandler struct {
	app      *pocketbase.PocketBase
	scans    *services.ScanService
	validate *validator.Validate
}

func NewScanHandler(app *pocketbase.PocketBase, scans *services.ScanService) *ScanHandler {
	return &ScanHandler{
		app:      app,
		scans:    scans,
		validate: validator.New(),
	}
}

type scanRequest struct {
	Payload string `json:"payload" validate:"required"`
	EventID string `json:"event_id" validate:"required"`
}

// Scan validates a QR payload at the door. Denials are regular 200 responses
// with approved=false; an operator device needs the reason, not an error page.
func (h *ScanHandler) Scan(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req scanRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.scans.Scan(e.Request.Context(), req.Payload, req.EventID, e.Auth.Id)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, result)
}

type walkUpRequest struct {
	EventID string `json:"event_id" validate:"required"`
	TierID  string `json:"tier_id" validate:"required"`
	Buyer   struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"buyer"`
}

// WalkUpSale sells a single ticket at the door, already checked in.
func (h *ScanHandler) WalkUpSale(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req walkUpRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	buyer := models.BuyerDetails{Name: req.Buyer.Name, Email: req.Buyer.Email}
	order, credential, err := h.scans.WalkUpSale(ctx, req.EventID, req.TierID, e.Auth.Id, buyer)
	if err != nil {
		return respondError(e, err)
	}

	projectOrder(ctx, h.app, order)
	projectCredentials(ctx, h.app, []models.Credential{*credential})

	return e.JSON(http.StatusOK, map[string]any{
		"order_id":      order.ID,
		"total":         order.Total.StringFixed(2),
		"currency":      order.Currency,
		"credential_id": credential.ID,
		"receipt":       credential.Payload,
	})
}
