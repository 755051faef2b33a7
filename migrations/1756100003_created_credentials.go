package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"name": "credentials",
			"type": "base",
			"fields": [
				{"name": "credential_id", "type": "text", "required": true},
				{"name": "order_id", "type": "text", "required": true},
				{"name": "event_id", "type": "text", "required": true},
				{"name": "tier_id", "type": "text"},
				{"name": "unit_id", "type": "text"},
				{"name": "owner_id", "type": "text"},
				{"name": "status", "type": "select", "maxSelect": 1, "values": ["issued", "consumed", "frozen", "escrowed", "superseded", "revoked"]}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_credentials_credential_id ON credentials (credential_id)",
				"CREATE INDEX idx_credentials_order ON credentials (order_id)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("credentials")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
