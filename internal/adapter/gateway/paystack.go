package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"wallet-service/config"
	"wallet-service/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PaystackClient implements ports.PaymentGateway against the Paystack API.
type PaystackClient struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	callbackURL   string
	httpClient    HTTPClient
	log           zerolog.Logger
}

// NewPaystackClient creates a new Paystack gateway client.
func NewPaystackClient(cfg config.PaystackConfig, callbackURL string, httpClient HTTPClient, log zerolog.Logger) *PaystackClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &PaystackClient{
		baseURL:       cfg.BaseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		callbackURL:   callbackURL,
		httpClient:    httpClient,
		log:           log,
	}
}

type initializeRequest struct {
	Amount      int64  `json:"amount"`
	Email       string `json:"email"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url"`
}

type initializeResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
	} `json:"data"`
	Message string `json:"message"`
}

// Initialize registers a checkout session with Paystack and returns the
// authorization URL. Called before any ledger transaction is opened.
func (c *PaystackClient) Initialize(ctx context.Context, amount int64, email, reference string) (string, error) {
	body, err := json.Marshal(initializeRequest{
		Amount:      amount,
		Email:       email,
		Reference:   reference,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build initialize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initialize payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("initialize payment: gateway returned %d: %s", resp.StatusCode, raw)
	}

	var parsed initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode initialize response: %w", err)
	}
	if !parsed.Status || parsed.Data.AuthorizationURL == "" {
		return "", fmt.Errorf("initialize payment rejected: %s", parsed.Message)
	}

	c.log.Debug().Str("reference", reference).Int64("amount", amount).Msg("paystack checkout session created")
	return parsed.Data.AuthorizationURL, nil
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	} `json:"data"`
	Message string `json:"message"`
}

// Verify fetches the gateway-side status of a payment reference.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*ports.GatewayVerification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("verify payment: gateway returned %d: %s", resp.StatusCode, raw)
	}

	var parsed verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("verify payment rejected: %s", parsed.Message)
	}

	return &ports.GatewayVerification{
		Status: parsed.Data.Status,
		Amount: parsed.Data.Amount,
	}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 signature Paystack sends
// in the x-paystack-signature header. Compared in constant time. An empty
// configured secret rejects everything.
func (c *PaystackClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(signature))
}
