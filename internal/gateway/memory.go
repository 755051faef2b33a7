package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Memory is an in-process gateway used in development and tests. Intents are
// held in a map; webhooks are simulated by signing a body with the same key
// the adapter verifies with.
type Memory struct {
	hmacKey string

	mu      sync.Mutex
	intents map[string]*ChargeIntentRequest
	seq     int
}

func NewMemory(hmacKey string) *Memory {
	return &Memory{
		hmacKey: hmacKey,
		intents: make(map[string]*ChargeIntentRequest),
	}
}

func (m *Memory) GetProvider() Provider {
	return ProviderMemory
}

func (m *Memory) CreateChargeIntent(ctx context.Context, req *ChargeIntentRequest) (*ChargeIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	intentID := fmt.Sprintf("pi_mem_%d_%d", time.Now().Unix(), m.seq)
	m.intents[intentID] = req

	return &ChargeIntent{
		IntentID: intentID,
		ClientParams: map[string]string{
			"checkout_hint": "memory gateway: settle via simulated webhook",
		},
	}, nil
}

func (m *Memory) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(m.hmacKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign produces a signature a test or the development payment simulator can
// attach to a fabricated webhook body.
func (m *Memory) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(m.hmacKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *Memory) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) error {
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}

// Intent returns a stored intent request, for simulator endpoints and tests.
func (m *Memory) Intent(intentID string) (*ChargeIntentRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.intents[intentID]
	return req, ok
}
