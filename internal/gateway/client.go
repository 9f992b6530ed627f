package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bundlemart/internal/common/money"
)

// Config holds payment gateway settings.
type Config struct {
	BaseURL     string        `envconfig:"GATEWAY_BASE_URL" default:"https://api.paystack.co"`
	SecretKey   string        `envconfig:"GATEWAY_SECRET_KEY" required:"true"`
	CallbackURL string        `envconfig:"GATEWAY_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
}

// Client calls the payment gateway's REST API.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  *http.Client
}

// NewClient creates a gateway client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// InitializeRequest starts a hosted checkout session.
type InitializeRequest struct {
	Email       string         `json:"email"`
	AmountMinor int64          `json:"amount"`
	Currency    money.Currency `json:"currency"`
	Reference   string         `json:"reference"`
}

// Checkout is the hosted payment page handed back to the client.
type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize creates a checkout session. The amount is the full expected
// total in minor units, fee included, so reconciliation can compare the
// gateway-reported amount against one number.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error) {
	body, err := json.Marshal(struct {
		InitializeRequest
		CallbackURL string `json:"callback_url,omitempty"`
	}{req, c.callbackURL})
	if err != nil {
		return nil, fmt.Errorf("marshaling initialize request: %w", err)
	}

	raw, err := c.post(ctx, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var checkout Checkout
	if err := json.Unmarshal(raw, &checkout); err != nil {
		return nil, fmt.Errorf("decoding checkout: %w", err)
	}
	return &checkout, nil
}

// Verify statuses reported by the gateway.
const (
	VerifyStatusSuccess   = "success"
	VerifyStatusFailed    = "failed"
	VerifyStatusAbandoned = "abandoned"
)

// VerifyResult is the gateway's authoritative view of a transaction,
// fetched on demand when a webhook is missed.
type VerifyResult struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Verify fetches the current state of a transaction by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("creating verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result VerifyResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding verify result: %w", err)
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding gateway response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Status {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, envelope.Message)
	}

	return envelope.Data, nil
}
