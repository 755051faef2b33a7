package models

import (
	"time"
)

const (
	ReservationActive   = "active"
	ReservationConsumed = "consumed"
	ReservationExpired  = "expired"
	ReservationReleased = "released"
)

type LineRequest struct {
	TierID   string `json:"tier_id"`
	Quantity int64  `json:"quantity"`
}

// Reservation is a time-boxed hold of inventory units. Status transitions are
// fenced by Lua scripts so a hold is released back to the ledger at most once
// even when the expiry sweep races a checkout or a manual release.
type Reservation struct {
	ID         string        `json:"reservation_id"`
	EventID    string        `json:"event_id"`
	CustomerID string        `json:"customer_id"`
	Items      []LineRequest `json:"items"`
	Status     string        `json:"status"` // active, consumed, expired, released
	ExpiresAt  time.Time     `json:"expires_at"`
	CreatedAt  time.Time     `json:"created_at"`
}
