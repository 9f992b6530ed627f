package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SupplierConfig holds upstream bundle-supplier settings.
type SupplierConfig struct {
	BaseURL string        `envconfig:"SUPPLIER_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"SUPPLIER_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"SUPPLIER_TIMEOUT" default:"30s"`
}

// SupplierClient pushes data bundles to recipient phone numbers through
// the upstream supplier's HTTP API.
type SupplierClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupplierClient creates a supplier client.
func NewSupplierClient(cfg SupplierConfig) *SupplierClient {
	return &SupplierClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type deliverRequest struct {
	ProductID string `json:"product_id"`
	Recipient string `json:"recipient"`
	Reference string `json:"reference"`
}

type deliverResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Deliver requests bundle delivery. The payment reference doubles as the
// supplier-side idempotency key, so a redelivered job is safe.
func (c *SupplierClient) Deliver(ctx context.Context, job Job) error {
	body, err := json.Marshal(deliverRequest{
		ProductID: job.ProductID,
		Recipient: job.BuyerPhone,
		Reference: job.PaymentReference,
	})
	if err != nil {
		return fmt.Errorf("marshaling delivery request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/deliveries", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", job.PaymentReference)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling supplier: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading supplier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("supplier returned %d: %s", resp.StatusCode, raw)
	}

	var dr deliverResponse
	if err := json.Unmarshal(raw, &dr); err != nil {
		return fmt.Errorf("decoding supplier response: %w", err)
	}
	if dr.Status != "success" && dr.Status != "pending" {
		return fmt.Errorf("supplier rejected delivery: %s", dr.Message)
	}

	return nil
}
