package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds credentials for the Paddle-backed verifier.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleVerifier implements Verifier over Paddle's transactions API for
// deployments that settle through Paddle instead of the REST gateway.
// The reference is Paddle's transaction ID (txn_...).
type PaddleVerifier struct {
	client *paddle.SDK
}

// NewPaddleVerifier creates a Paddle-backed verifier.
func NewPaddleVerifier(cfg PaddleConfig) (*PaddleVerifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	return &PaddleVerifier{client: client}, nil
}

func (p *PaddleVerifier) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if reference == "" {
		return nil, ErrMissingReference
	}

	txn, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: reference,
	})
	if err != nil {
		// The SDK does not distinguish transport faults from lookups of
		// unknown IDs in a stable way, so treat API errors conservatively
		// as transient: the caller retries instead of rejecting a payment
		// Paddle may actually have completed.
		return nil, errors.Join(ErrVerificationUnavailable, err)
	}

	out := &Transaction{
		Reference:       txn.ID,
		Status:          mapPaddleStatus(string(txn.Status)),
		Currency:        string(txn.CurrencyCode),
		GatewayResponse: string(txn.Status),
	}

	// Paddle totals are strings in the smallest currency unit.
	if amount, err := strconv.ParseInt(txn.Details.Totals.GrandTotal, 10, 64); err == nil {
		out.Amount = amount
	}

	// Billing email travels in custom data; Paddle transactions do not
	// embed the customer object.
	if email, ok := txn.CustomData["email"].(string); ok {
		out.CustomerEmail = email
	}

	if createdAt, err := time.Parse(time.RFC3339, txn.CreatedAt); err == nil {
		out.CreatedAt = createdAt
	}

	return out, nil
}

// mapPaddleStatus folds Paddle's vocabulary into the cross-validator's
// "success" convention.
func mapPaddleStatus(status string) string {
	switch strings.ToLower(status) {
	case "completed", "paid":
		return "success"
	default:
		return status
	}
}
