// Package sandbox is an HTTP client for the hosted sandbox payment provider.
// The adapter in the parent package maps it onto the Gateway contract.
package sandbox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	BaseURL    string        `json:"baseUrl"`
	MerchantID string        `json:"merchantId"`
	HMACKey    string        `json:"hmacKey"`
	Timeout    time.Duration `json:"timeout"`
}

type Client struct {
	// baseURL is the base url of the sandbox backend.
	baseURL string

	// merchantID identifies this platform to the sandbox backend.
	merchantID string

	// hmacKey signs outbound requests and verifies webhook bodies.
	hmacKey string

	// hc is the http client.
	hc *http.Client
}

func New(c *Config) *Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    c.BaseURL,
		merchantID: c.MerchantID,
		hmacKey:    c.HMACKey,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

type intentForm struct {
	MerchantID string `json:"merchant_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Reference  string `json:"reference"`
	Buyer      string `json:"buyer,omitempty"`
}

type intentResponse struct {
	IntentID     string            `json:"intent_id"`
	ClientParams map[string]string `json:"client_params"`
	ErrorMessage string            `json:"error,omitempty"`
}

// CreateIntent registers a pending charge with the sandbox backend.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, reference, buyer string) (string, map[string]string, error) {
	form := intentForm{
		MerchantID: c.merchantID,
		Amount:     amount.StringFixed(2),
		Currency:   currency,
		Reference:  reference,
		Buyer:      buyer,
	}

	body, err := json.Marshal(form)
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Id", c.merchantID)
	req.Header.Set("X-Signature", c.Sign(body))

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", nil, fmt.Errorf("sandbox intent: unexpected status %d: %s", resp.StatusCode, raw)
	}

	var out intentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", nil, fmt.Errorf("sandbox intent: decode response: %w", err)
	}
	if out.ErrorMessage != "" {
		return "", nil, fmt.Errorf("sandbox intent: %s", out.ErrorMessage)
	}

	return out.IntentID, out.ClientParams, nil
}

// Refund reverses a settled charge.
func (c *Client) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) error {
	body, err := json.Marshal(map[string]string{
		"merchant_id": c.merchantID,
		"payment_id":  paymentID,
		"amount":      amount.StringFixed(2),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/refunds", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Id", c.merchantID)
	req.Header.Set("X-Signature", c.Sign(body))

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sandbox refund: unexpected status %d: %s", resp.StatusCode, raw)
	}

	return nil
}

// Sign computes the hex HMAC-SHA256 of body with the merchant key.
func (c *Client) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.hmacKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook body against its signature header.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	expected := c.Sign(body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
