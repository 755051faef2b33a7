package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"name": "orders",
			"type": "base",
			"fields": [
				{"name": "order_id", "type": "text", "required": true},
				{"name": "customer_id", "type": "text", "required": true},
				{"name": "event_id", "type": "text", "required": true},
				{"name": "total", "type": "text"},
				{"name": "currency", "type": "text"},
				{"name": "status", "type": "select", "maxSelect": 1, "values": ["draft", "pending_payment", "confirmed", "cancelled", "checked_in"]},
				{"name": "payment_ref", "type": "text"},
				{"name": "buyer_email", "type": "email"}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_orders_order_id ON orders (order_id)",
				"CREATE INDEX idx_orders_customer ON orders (customer_id)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
