package handlers

import (
	"net/http"

	"ticket-core/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdmissionHandler struct {
	app       *pocketbase.PocketBase
	admission *services.AdmissionService
}

func NewAdmissionHandler(app *pocketbase.PocketBase, admission *services.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{
		app:       app,
		admission: admission,
	}
}

// Enqueue joins the caller to an event's surge waiting list.
func (h *AdmissionHandler) Enqueue(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	position, err := h.admission.Enqueue(e.Request.Context(), req.EventID, e.Auth.Id)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": req.EventID,
		"position": position,
	})
}

// Status reports the event's admission mode and the caller's queue position.
func (h *AdmissionHandler) Status(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.URL.Query().Get("event_id")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	queueStatus, err := h.admission.Status(e.Request.Context(), eventID, e.Auth.Id)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, queueStatus)
}
