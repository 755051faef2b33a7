package gateway

import (
	"context"
	"errors"
	"fmt"

	"ticket-core/internal/gateway/sandbox"
	"ticket-core/internal/status"
	"ticket-core/utils"

	"github.com/shopspring/decimal"
)

// SandboxAdapter maps the sandbox HTTP client onto the Gateway contract and
// shields callers behind a circuit breaker.
type SandboxAdapter struct {
	client  *sandbox.Client
	breaker *utils.CircuitBreaker
}

func NewSandboxAdapter(cfg *sandbox.Config) (*SandboxAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("sandbox gateway: base url required")
	}

	return &SandboxAdapter{
		client:  sandbox.New(cfg),
		breaker: utils.NewCircuitBreaker("sandbox-gateway"),
	}, nil
}

func (a *SandboxAdapter) GetProvider() Provider {
	return ProviderSandbox
}

func (a *SandboxAdapter) CreateChargeIntent(ctx context.Context, req *ChargeIntentRequest) (*ChargeIntent, error) {
	result, err := a.breaker.Execute(ctx, func() (interface{}, error) {
		intentID, params, err := a.client.CreateIntent(ctx, req.Amount, req.Currency, req.Reference, req.Buyer)
		if err != nil {
			return nil, err
		}
		return &ChargeIntent{IntentID: intentID, ClientParams: params}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
	}

	return result.(*ChargeIntent), nil
}

func (a *SandboxAdapter) VerifySignature(body []byte, signature string) bool {
	return a.client.VerifySignature(body, signature)
}

func (a *SandboxAdapter) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) error {
	_, err := a.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, a.client.Refund(ctx, paymentID, amount)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
	}
	return nil
}

func (a *SandboxAdapter) Close(ctx context.Context) error {
	return nil
}
