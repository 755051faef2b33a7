package handlers

import (
	"errors"
	"net/http"

	"ticket-core/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// respondError translates service sentinels into transport responses.
// Conflicts come back as 409 with the sentinel text so a client can retry
// from the right step; unknown errors stay opaque 500s.
func respondError(e *core.RequestEvent, err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidItem),
		errors.Is(err, status.ErrInvalidQuantity),
		errors.Is(err, status.ErrInvalidPayload):
		return apis.NewBadRequestError(err.Error(), err)

	case errors.Is(err, status.ErrReservationNotFound),
		errors.Is(err, status.ErrOrderNotFound),
		errors.Is(err, status.ErrCredentialNotFound),
		errors.Is(err, status.ErrBundleNotFound),
		errors.Is(err, status.ErrTransferNotFound):
		return apis.NewNotFoundError(err.Error(), err)

	case errors.Is(err, status.ErrNotOwner):
		return apis.NewForbiddenError(err.Error(), err)

	case errors.Is(err, status.ErrAdmissionTokenRequired):
		return apis.NewForbiddenError(err.Error(), err)

	case status.IsConflict(err):
		return e.JSON(http.StatusConflict, map[string]any{"error": err.Error()})

	case errors.Is(err, status.ErrGatewayUnavailable),
		errors.Is(err, status.ErrGatewayTimeout):
		return e.JSON(http.StatusBadGateway, map[string]any{"error": err.Error()})

	default:
		return apis.NewInternalServerError("internal error", err)
	}
}
