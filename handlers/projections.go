package handlers

import (
	"context"
	"log/slog"

	"ticket-core/models"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
)

// Durable projections. Redis is authoritative for the transactional state;
// these records exist for history queries and the admin UI. Failures are
// logged and never bubble into the purchase flow.

func projectOrder(ctx context.Context, app *pocketbase.PocketBase, order *models.Order) {
	record, err := app.FindFirstRecordByData("orders", "order_id", order.ID)
	if err != nil {
		collection, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			slog.Error("order projection: collection missing", "error", err)
			return
		}
		record = core.NewRecord(collection)
		record.Set("order_id", order.ID)
	}

	record.Set("customer_id", order.CustomerID)
	record.Set("event_id", order.EventID)
	record.Set("total", order.Total.StringFixed(2))
	record.Set("currency", order.Currency)
	record.Set("status", order.Status)
	record.Set("payment_ref", order.PaymentRef)
	record.Set("buyer_email", order.Buyer.Email)

	if err := app.SaveWithContext(ctx, record); err != nil {
		slog.Error("order projection save failed", "order_id", order.ID, "error", err)
	}
}

func projectTransfer(ctx context.Context, app *pocketbase.PocketBase, transfer *models.TransferRequest) {
	record, err := app.FindFirstRecordByData("transfers", "transfer_id", transfer.ID)
	if err != nil {
		collection, err := app.FindCollectionByNameOrId("transfers")
		if err != nil {
			slog.Error("transfer projection: collection missing", "error", err)
			return
		}
		record = core.NewRecord(collection)
		record.Set("transfer_id", transfer.ID)
	}

	record.Set("credential_id", transfer.CredentialID)
	record.Set("from_user_id", transfer.FromUserID)
	record.Set("recipient", transfer.To)
	record.Set("status", transfer.Status)

	if err := app.SaveWithContext(ctx, record); err != nil {
		slog.Error("transfer projection save failed", "transfer_id", transfer.ID, "error", err)
	}
}

func projectCredentials(ctx context.Context, app *pocketbase.PocketBase, credentials []models.Credential) {
	collection, err := app.FindCollectionByNameOrId("credentials")
	if err != nil {
		slog.Error("credential projection: collection missing", "error", err)
		return
	}

	for _, credential := range credentials {
		record := core.NewRecord(collection)
		record.Set("credential_id", credential.ID)
		record.Set("order_id", credential.OrderID)
		record.Set("event_id", credential.EventID)
		record.Set("tier_id", credential.TierID)
		record.Set("unit_id", credential.TicketUnitID)
		record.Set("owner_id", credential.OwnerID)
		record.Set("status", credential.Status)

		if err := app.SaveWithContext(ctx, record); err != nil {
			slog.Error("credential projection save failed", "credential_id", credential.ID, "error", err)
		}
	}
}
