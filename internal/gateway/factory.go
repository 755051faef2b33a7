package gateway

import (
	"fmt"

	"ticket-core/config"
	"ticket-core/internal/gateway/sandbox"
)

// New creates a gateway instance for the configured provider.
func New(cfg *config.Config) (Gateway, error) {
	switch Provider(cfg.GatewayProvider) {
	case ProviderSandbox:
		return NewSandboxAdapter(&sandbox.Config{
			BaseURL:    cfg.GatewayBaseURL,
			MerchantID: cfg.GatewayMerchant,
			HMACKey:    cfg.GatewayHMACKey,
			Timeout:    cfg.GatewayTimeout,
		})

	case ProviderMemory:
		return NewMemory(cfg.GatewayHMACKey), nil

	default:
		return nil, fmt.Errorf("unsupported gateway provider: %s", cfg.GatewayProvider)
	}
}
