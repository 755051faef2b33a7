package handlers

import (
	"net/http"

	"ticket-core/services"

	"github.com/go-playground/validator/v10"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TransferHandler struct {
	app       *pocketbase.PocketBase
	transfers *services.TransferService
	validate  *validator.Validate
}

func NewTransferHandler(app *pocketbase.PocketBase, transfers *services.TransferService) *TransferHandler {
	return &TransferHandler{
		app:       app,
		transfers: transfers,
		validate:  validator.New(),
	}
}

type createBundleRequest struct {
	OrderID       string   `json:"order_id" validate:"required"`
	CredentialIDs []string `json:"credential_ids" validate:"required,min=1,max=20"`
}

// CreateBundle escrows the named credentials behind claimable slots.
func (h *TransferHandler) CreateBundle(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req createBundleRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	bundle, err := h.transfers.CreateBundle(e.Request.Context(), e.Auth.Id, req.OrderID, req.CredentialIDs)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, bundle)
}

// GetBundle shows a bundle and its slots. Anyone with the bundle link can see
// which slots are still open.
func (h *TransferHandler) GetBundle(e *core.RequestEvent) error {
	bundle, err := h.transfers.GetBundle(e.Request.Context(), e.Request.PathValue("bundleId"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, bundle)
}

type slotRequest struct {
	Slot int `json:"slot"`
}

// ClaimSlot takes one open slot for the caller and returns their fresh
// credential payload.
func (h *TransferHandler) ClaimSlot(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req slotRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	credential, err := h.transfers.ClaimSlot(e.Request.Context(), e.Request.PathValue("bundleId"), req.Slot, e.Auth.Id)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"credential_id": credential.ID,
		"event_id":      credential.EventID,
		"tier_id":       credential.TierID,
		"qr_payload":    credential.Payload,
	})
}

// ReclaimSlot lets the bundle owner take a slot back.
func (h *TransferHandler) ReclaimSlot(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req slotRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	slot, err := h.transfers.ReclaimSlot(e.Request.Context(), e.Request.PathValue("bundleId"), req.Slot, e.Auth.Id)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, slot)
}

type createTransferRequest struct {
	CredentialID string `json:"credential_id" validate:"required"`
	To           string `json:"to" validate:"required"`
}

// CreateTransfer offers one credential to another person.
func (h *TransferHandler) CreateTransfer(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req createTransferRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	transfer, err := h.transfers.CreateTransfer(ctx, req.CredentialID, e.Auth.Id, req.To)
	if err != nil {
		return respondError(e, err)
	}
	projectTransfer(ctx, h.app, transfer)

	return e.JSON(http.StatusOK, transfer)
}

// AcceptTransfer settles a pending transfer for the recipient.
func (h *TransferHandler) AcceptTransfer(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()
	transferID := e.Request.PathValue("transferId")

	credential, err := h.transfers.AcceptTransfer(ctx, transferID, e.Auth.Id)
	if err != nil {
		return respondError(e, err)
	}
	if transfer, err := h.transfers.GetTransfer(ctx, transferID); err == nil {
		projectTransfer(ctx, h.app, transfer)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"credential_id": credential.ID,
		"event_id":      credential.EventID,
		"tier_id":       credential.TierID,
		"qr_payload":    credential.Payload,
	})
}

// CancelTransfer withdraws a pending transfer.
func (h *TransferHandler) CancelTransfer(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()
	transferID := e.Request.PathValue("transferId")

	if err := h.transfers.CancelTransfer(ctx, transferID, e.Auth.Id); err != nil {
		return respondError(e, err)
	}
	if transfer, err := h.transfers.GetTransfer(ctx, transferID); err == nil {
		projectTransfer(ctx, h.app, transfer)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Transfer cancelled"})
}
