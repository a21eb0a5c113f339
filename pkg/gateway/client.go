package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config holds the REST gateway's environment-provided parameters.
type Config struct {
	BaseURL   string        `env:"GATEWAY_BASE_URL,required"`
	SecretKey string        `env:"GATEWAY_SECRET_KEY,required"`
	Timeout   time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
}

// Client talks to the payment gateway's REST API: transaction verification
// by reference, payment initialization, and authorization re-charges.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient builds a gateway client with a bounded per-request timeout.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("gateway secret key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// verifyResponse mirrors the gateway's transaction-verify body.
type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		GatewayResponse string `json:"gateway_response"`
		CreatedAt       string `json:"created_at"`
		Customer        struct {
			Email string `json:"email"`
		} `json:"customer"`
		Authorization struct {
			AuthorizationCode string `json:"authorization_code"`
		} `json:"authorization"`
	} `json:"data"`
}

// VerifyTransaction fetches the gateway's record for a reference.
// Transport failures, timeouts and 5xx responses surface as
// ErrVerificationUnavailable; a 404 is ErrTransactionNotFound.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if reference == "" {
		return nil, ErrMissingReference
	}

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTransactionNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrVerificationUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("gateway verify failed with status %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, err)
	}
	if !body.Status {
		return nil, fmt.Errorf("gateway verify rejected: %s", body.Message)
	}

	txn := &Transaction{
		Reference:         body.Data.Reference,
		Status:            body.Data.Status,
		Amount:            body.Data.Amount,
		Currency:          body.Data.Currency,
		CustomerEmail:     body.Data.Customer.Email,
		GatewayResponse:   body.Data.GatewayResponse,
		AuthorizationCode: body.Data.Authorization.AuthorizationCode,
	}
	if body.Data.CreatedAt != "" {
		if createdAt, err := time.Parse(time.RFC3339, body.Data.CreatedAt); err == nil {
			txn.CreatedAt = createdAt
		}
	}
	return txn, nil
}

// InitializationRequest starts a hosted payment for a new subscription.
type InitializationRequest struct {
	Email    string
	Amount   int64 // minor currency units
	Currency string
	PlanID   string
	Metadata map[string]any
}

// Initialization is the gateway's payment-initiation payload the caller is
// redirected through.
type Initialization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// InitializeTransaction asks the gateway for a hosted checkout session.
func (c *Client) InitializeTransaction(ctx context.Context, initReq InitializationRequest) (*Initialization, error) {
	payload := map[string]any{
		"email":    initReq.Email,
		"amount":   initReq.Amount,
		"currency": initReq.Currency,
	}
	if initReq.PlanID != "" {
		payload["plan"] = initReq.PlanID
	}
	if len(initReq.Metadata) > 0 {
		payload["metadata"] = initReq.Metadata
	}

	var body struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/transaction/initialize", payload, &body); err != nil {
		return nil, err
	}
	if !body.Status {
		return nil, fmt.Errorf("gateway initialization rejected: %s", body.Message)
	}

	return &Initialization{
		AuthorizationURL: body.Data.AuthorizationURL,
		AccessCode:       body.Data.AccessCode,
		Reference:        body.Data.Reference,
	}, nil
}

// ChargeResult reports the outcome of re-charging a stored authorization.
type ChargeResult struct {
	Success         bool
	Reference       string
	GatewayResponse string
}

// ChargeAuthorization attempts to charge a previously authorized payment
// method. Used by the payment-retry flow.
func (c *Client) ChargeAuthorization(ctx context.Context, email, authorizationCode string, amount int64, currency string) (*ChargeResult, error) {
	payload := map[string]any{
		"email":              email,
		"amount":             amount,
		"currency":           currency,
		"authorization_code": authorizationCode,
	}

	var body struct {
		Status bool `json:"status"`
		Data   struct {
			Status          string `json:"status"`
			Reference       string `json:"reference"`
			GatewayResponse string `json:"gateway_response"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/transaction/charge_authorization", payload, &body); err != nil {
		return nil, err
	}

	return &ChargeResult{
		Success:         body.Status && body.Data.Status == "success",
		Reference:       body.Data.Reference,
		GatewayResponse: body.Data.GatewayResponse,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrVerificationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway returned %d", ErrVerificationUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway call %s failed with status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrVerificationUnavailable, err)
	}
	return nil
}
