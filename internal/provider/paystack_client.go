package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/changia/platform/internal/config"
	"github.com/changia/platform/internal/currency"
)

// PaystackClient initiates card-gateway checkouts. The reference we generate
// is echoed back verbatim on the charge webhook, giving the resolver its
// exact correlation id.
type PaystackClient struct {
	cfg    config.PaystackConfig
	client *http.Client
}

func NewPaystackClient(cfg config.PaystackConfig) *PaystackClient {
	return &PaystackClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// CheckoutResult is the redirect handed back to the donor's browser.
type CheckoutResult struct {
	AuthorizationURL string
	Reference        string
}

// InitializeTransaction registers a pending charge with the gateway. The
// metadata travels with the charge and comes back on the webhook, carrying
// the internal request and user ids.
func (c *PaystackClient) InitializeTransaction(ctx context.Context, email string, amount float64, code, reference string, metadata map[string]string) (*CheckoutResult, error) {
	minor, err := currency.ToMinorUnits(amount, code)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	reqBody := map[string]any{
		"email":     email,
		"amount":    minor,
		"currency":  code,
		"reference": reference,
		"metadata":  metadata,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("initialize status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Status bool   `json:"status"`
		Msg    string `json:"message"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode initialize response: %w", err)
	}
	if !out.Status || out.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("initialize rejected: %s", out.Msg)
	}

	return &CheckoutResult{
		AuthorizationURL: out.Data.AuthorizationURL,
		Reference:        out.Data.Reference,
	}, nil
}
