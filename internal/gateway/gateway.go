package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment gateway backend.
type Provider string

const (
	ProviderSandbox Provider = "sandbox"
	ProviderMemory  Provider = "memory"
)

// ChargeIntentRequest asks the gateway to prepare a charge the buyer can
// complete out of band.
type ChargeIntentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference"` // order id
	Buyer     string          `json:"buyer,omitempty"`
}

type ChargeIntent struct {
	IntentID string `json:"intent_id"`
	// ClientParams are opaque values the presentation layer forwards to the
	// buyer (redirect URL, QR string, etc.).
	ClientParams map[string]string `json:"client_params,omitempty"`
}

// WebhookEvent is the gateway's at-least-once payment notification. The same
// PaymentID may arrive any number of times and out of order.
type WebhookEvent struct {
	EventType string          `json:"event_type"`
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Outcome   string          `json:"outcome"` // succeeded, failed
}

// Gateway is the narrow contract this core consumes from a payment provider.
type Gateway interface {
	GetProvider() Provider

	// CreateChargeIntent registers a pending charge and returns the gateway
	// parameters the buyer needs to complete it.
	CreateChargeIntent(ctx context.Context, req *ChargeIntentRequest) (*ChargeIntent, error)

	// VerifySignature checks the authenticity of a raw webhook body against
	// the provider's signature header.
	VerifySignature(body []byte, signature string) bool

	// Refund reverses a settled charge. Out of band of the consistency core;
	// consumed by the (out of scope) admin refund workflow.
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) error

	// Close gracefully closes any connections.
	Close(ctx context.Context) error
}
