package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Venue     string    `json:"venue"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"` // draft, published, started, ended
}

// InventoryTier is one sellable capacity bucket of an event. The remaining
// counter lives in Redis and is only ever mutated through the inventory
// ledger scripts; the struct is a read model.
type InventoryTier struct {
	ID            string          `json:"tier_id"`
	EventID       string          `json:"event_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	TotalCapacity int64           `json:"total_capacity"`
	Remaining     int64           `json:"remaining"`
}
