package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"name": "events",
			"type": "base",
			"fields": [
				{"name": "name", "type": "text", "required": true},
				{"name": "venue", "type": "text"},
				{"name": "start_time", "type": "date"},
				{"name": "end_time", "type": "date"},
				{"name": "status", "type": "select", "maxSelect": 1, "values": ["draft", "published", "started", "ended"]}
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
