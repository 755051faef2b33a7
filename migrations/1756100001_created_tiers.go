package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"name": "tiers",
			"type": "base",
			"fields": [
				{"name": "event_id", "type": "text", "required": true},
				{"name": "name", "type": "text", "required": true},
				{"name": "price", "type": "text", "required": true},
				{"name": "total_capacity", "type": "number", "onlyInt": true}
			],
			"indexes": [
				"CREATE INDEX idx_tiers_event ON tiers (event_id)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tiers")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
