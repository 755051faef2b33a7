package models

import (
	"time"
)

const (
	SlotOpen    = "open"
	SlotClaimed = "claimed"
	SlotExpired = "expired"
)

type ShareSlot struct {
	Index              int        `json:"index"`
	SourceCredentialID string     `json:"source_credential_id"`
	Status             string     `json:"status"` // open, claimed, expired
	ClaimedBy          string     `json:"claimed_by,omitempty"`
	CredentialID       string     `json:"credential_id,omitempty"` // minted for the claimant
	ExpiresAt          time.Time  `json:"expires_at"`
	ClaimedAt          *time.Time `json:"claimed_at,omitempty"`
}

// ShareBundle splits part of an order into individually claimable slots. The
// source credentials sit in escrow while the bundle is live so the original
// QR codes cannot be scanned alongside the claimed copies.
type ShareBundle struct {
	ID        string      `json:"bundle_id"`
	OrderID   string      `json:"order_id"`
	OwnerID   string      `json:"owner_id"`
	Slots     []ShareSlot `json:"slots"`
	CreatedAt time.Time   `json:"created_at"`
}

const (
	TransferPending   = "pending"
	TransferAccepted  = "accepted"
	TransferCancelled = "cancelled"
	TransferExpired   = "expired"
)

// TransferRequest hands full ownership of one credential to someone else.
// The credential is frozen while the request is pending; ownership moves only
// on accept, and a cancelled request restores the original owner's copy.
type TransferRequest struct {
	ID           string    `json:"transfer_id"`
	CredentialID string    `json:"credential_id"`
	FromUserID   string    `json:"from_user_id"`
	To           string    `json:"to"` // recipient user id or email
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}
