package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/changia/platform/internal/config"
)

// MpesaClient initiates STK push payments against the Daraja API. The
// correlation ids it returns must be persisted on the payment row before the
// callback can arrive, so the resolver's exact-id path works.
type MpesaClient struct {
	cfg    config.MpesaConfig
	client *http.Client
}

func NewMpesaClient(cfg config.MpesaConfig) *MpesaClient {
	return &MpesaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// STKPushResult carries the provider correlation ids for a push request.
type STKPushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// STKPush asks the provider to push a payment prompt to the donor's phone.
// accountRef is the internal invoice echoed back on paybill statements.
func (c *MpesaClient) STKPush(ctx context.Context, phone string, amount float64, accountRef string) (*STKPushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))

	reqBody := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            int64(amount),
		"PartyA":            phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  accountRef,
		"TransactionDesc":   "Donation",
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal stk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build stk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stk push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stk push status %d: %s", resp.StatusCode, string(body))
	}

	var out stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode stk response: %w", err)
	}
	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("stk push rejected: %s %s", out.ResponseCode, out.ResponseDescription)
	}
	if out.CheckoutRequestID == "" {
		return nil, fmt.Errorf("stk push response missing CheckoutRequestID")
	}

	return &STKPushResult{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
	}, nil
}

func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return out.AccessToken, nil
}
