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

type ReservationHandler struct {
	app          *pocketbase.PocketBase
	reservations *services.ReservationService
	admission    *services.AdmissionService
	validate     *validator.Validate
}

func NewReservationHandler(app *pocketbase.PocketBase, reservations *services.ReservationService, admission *services.AdmissionService) *ReservationHandler {
	return &ReservationHandler{
		app:          app,
		reservations: reservations,
		admission:    admission,
		validate:     validator.New(),
	}
}

type reserveRequest struct {
	EventID        string `json:"event_id" validate:"required"`
	AdmissionToken string `json:"admission_token"`
	Items          []struct {
		TierID   string `json:"tier_id" validate:"required"`
		Quantity int64  `json:"quantity" validate:"required,gt=0,lte=10"`
	} `json:"items" validate:"required,min=1,dive"`
}

// CreateReservation places a time-boxed hold on the requested tiers. During
// surge mode the caller must spend an admission token first.
func (h *ReservationHandler) CreateReservation(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req reserveRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	mode, err := h.admission.Mode(ctx, req.EventID)
	if err != nil {
		return respondError(e, err)
	}
	if mode == models.ModeSurge {
		if req.AdmissionToken == "" {
			return apis.NewForbiddenError("Admission token required", nil)
		}
		if err := h.admission.ConsumeToken(ctx, req.EventID, e.Auth.Id, req.AdmissionToken); err != nil {
			return respondError(e, err)
		}
	}

	items := make([]models.LineRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.LineRequest{TierID: item.TierID, Quantity: item.Quantity})
	}

	reservation, err := h.reservations.Reserve(ctx, req.EventID, e.Auth.Id, items)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"reservation_id": reservation.ID,
		"status":         reservation.Status,
		"expires_at":     reservation.ExpiresAt,
		"items":          reservation.Items,
	})
}

// GetReservation returns the caller's hold.
func (h *ReservationHandler) GetReservation(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	reservation, err := h.reservations.Get(e.Request.Context(), e.Request.PathValue("reservationId"))
	if err != nil {
		return respondError(e, err)
	}
	if reservation.CustomerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, reservation)
}

// ReleaseReservation lets a user give a hold back before it expires.
func (h *ReservationHandler) ReleaseReservation(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	ctx := e.Request.Context()
	reservationID := e.Request.PathValue("reservationId")

	reservation, err := h.reservations.Get(ctx, reservationID)
	if err != nil {
		return respondError(e, err)
	}
	if reservation.CustomerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	if err := h.reservations.Release(ctx, reservationID, models.ReservationReleased); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Reservation released"})
}
