package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderDraft          = "draft"
	OrderPendingPayment = "pending_payment"
	OrderConfirmed      = "confirmed"
	OrderCancelled      = "cancelled"
	OrderCheckedIn      = "checked_in"
)

type OrderLine struct {
	TierID    string          `json:"tier_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type BuyerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Order struct {
	ID            string          `json:"order_id"`
	ReservationID string          `json:"reservation_id,omitempty"`
	CustomerID    string          `json:"customer_id"`
	EventID       string          `json:"event_id"`
	Lines         []OrderLine     `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"` // draft, pending_payment, confirmed, cancelled, checked_in
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Buyer         BuyerDetails    `json:"buyer"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WebhookReceipt is the write-once idempotency witness for gateway payment
// events. Its existence, keyed by the gateway payment id, is what makes a
// duplicated delivery a no-op.
type WebhookReceipt struct {
	PaymentID     string    `json:"payment_id"`
	OrderID       string    `json:"order_id"`
	AppliedStatus string    `json:"applied_status"`
	ProcessedAt   time.Time `json:"processed_at"`
}
