package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ticket-core/models"
	"ticket-core/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	app       *pocketbase.PocketBase
	admission *services.AdmissionService
	inventory *services.InventoryService
	catalog   *services.CatalogService
	webhooks  *services.WebhookService
}

func NewAdminHandler(app *pocketbase.PocketBase, admission *services.AdmissionService, inventory *services.InventoryService, catalog *services.CatalogService, webhooks *services.WebhookService) *AdminHandler {
	return &AdminHandler{
		app:       app,
		admission: admission,
		inventory: inventory,
		catalog:   catalog,
		webhooks:  webhooks,
	}
}

func (h *AdminHandler) requireAdmin(e *core.RequestEvent) error {
	if e.Auth == nil || !e.Auth.IsSuperuser() {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}
	return nil
}

// SetMode flips an event between normal and surge admission.
func (h *AdminHandler) SetMode(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Mode != models.ModeNormal && req.Mode != models.ModeSurge {
		return apis.NewBadRequestError("Mode must be normal or surge", nil)
	}

	eventID := e.Request.PathValue("eventId")
	if err := h.admission.SetMode(e.Request.Context(), eventID, req.Mode); err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "mode": req.Mode})
}

// AdmitBatch releases the next waiting users with single-use admission tokens.
func (h *AdminHandler) AdmitBatch(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		Limit int `json:"limit"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	eventID := e.Request.PathValue("eventId")
	tokens, err := h.admission.IssueBatch(e.Request.Context(), eventID, req.Limit)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"admitted": len(tokens),
	})
}

// SeedInventory loads the ledger counters for an event from its catalog tiers.
func (h *AdminHandler) SeedInventory(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}
	ctx := e.Request.Context()
	eventID := e.Request.PathValue("eventId")

	tiers, err := h.catalog.TiersByEvent(ctx, eventID)
	if err != nil {
		return respondError(e, err)
	}

	seeded := make(map[string]int64, len(tiers))
	for _, tier := range tiers {
		if err := h.inventory.Seed(ctx, eventID, tier.ID, tier.TotalCapacity); err != nil {
			return respondError(e, err)
		}
		seeded[tier.ID] = tier.TotalCapacity
	}
	h.catalog.InvalidatePrices(ctx, eventID)

	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "seeded": seeded})
}

// Anomalies lists flagged webhook integrity problems, newest first.
func (h *AdminHandler) Anomalies(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	limit := int64(50)
	if raw := e.Request.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.webhooks.Anomalies(e.Request.Context(), limit)
	if err != nil {
		return respondError(e, err)
	}

	anomalies := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		var decoded map[string]any
		if json.Unmarshal([]byte(entry), &decoded) == nil {
			anomalies = append(anomalies, decoded)
		}
	}

	return e.JSON(http.StatusOK, anomalies)
}
