package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateChargeIntent(t *testing.T) {
	m := NewMemory("test-key")

	intent, err := m.CreateChargeIntent(context.Background(), &ChargeIntentRequest{
		Amount:    decimal.RequireFromString("150.00"),
		Currency:  "INR",
		Reference: "ord-1",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, intent.IntentID)

	stored, ok := m.Intent(intent.IntentID)
	require.True(t, ok)
	assert.Equal(t, "ord-1", stored.Reference)
}

func TestMemorySignatureRoundTrip(t *testing.T) {
	m := NewMemory("test-key")

	body := []byte(`{"payment_id":"pay-1","order_id":"ord-1","amount":"150.00","outcome":"succeeded"}`)
	signature := m.Sign(body)

	assert.True(t, m.VerifySignature(body, signature))
	assert.False(t, m.VerifySignature([]byte(`{"tampered":true}`), signature))
}

func TestMemorySignatureWrongKey(t *testing.T) {
	signer := NewMemory("key-a")
	verifier := NewMemory("key-b")

	body := []byte(`{"payment_id":"pay-1"}`)

	assert.False(t, verifier.VerifySignature(body, signer.Sign(body)))
}
