package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"name": "transfers",
			"type": "base",
			"fields": [
				{"name": "transfer_id", "type": "text", "required": true},
				{"name": "credential_id", "type": "text", "required": true},
				{"name": "from_user_id", "type": "text"},
				{"name": "recipient", "type": "text"},
				{"name": "status", "type": "select", "maxSelect": 1, "values": ["pending", "accepted", "cancelled", "expired"]}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_transfers_transfer_id ON transfers (transfer_id)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("transfers")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
