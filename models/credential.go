package models

import (
	"time"
)

const (
	CredentialIssued     = "issued"
	CredentialConsumed   = "consumed"
	CredentialFrozen     = "frozen"     // pending outbound transfer
	CredentialEscrowed   = "escrowed"   // held by a share bundle slot
	CredentialSuperseded = "superseded" // replaced by a slot-claim credential
	CredentialRevoked    = "revoked"    // invalidated by owner reclaim
)

// Credential is the signed proof of one purchased ticket unit. It mutates
// exactly once, from issued to consumed, at the venue door; every other
// status exists so transfers and share bundles can park a credential without
// it remaining scannable.
type Credential struct {
	ID           string     `json:"credential_id"`
	OrderID      string     `json:"order_id"`
	EventID      string     `json:"event_id"`
	TierID       string     `json:"tier_id"`
	TicketUnitID string     `json:"ticket_unit_id"`
	OwnerID      string     `json:"owner_id"`
	Status       string     `json:"status"`
	Payload      string     `json:"payload,omitempty"` // signed QR string, never stored
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy   string     `json:"consumed_by,omitempty"`
	IssuedAt     time.Time  `json:"issued_at"`
}
