package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrVerificationUnavailable marks a transient failure reaching the
	// gateway's verification endpoint. Callers must treat it as "not yet
	// verified" and retry at a higher level, never as a confirmation in
	// either direction.
	ErrVerificationUnavailable = errors.New("gateway verification unavailable")

	// ErrTransactionNotFound means the gateway has no record of the
	// reference. This is a definitive rejection, not a transient fault.
	ErrTransactionNotFound = errors.New("transaction not found at gateway")

	ErrMissingReference = errors.New("transaction reference is required")
)

// Transaction is the gateway's own record of a payment, fetched from its
// verification endpoint. This is the source of truth inbound claims are
// cross-checked against.
type Transaction struct {
	Reference         string
	Status            string // gateway transaction status, "success" when paid
	Amount            int64  // minor currency units
	Currency          string
	CustomerEmail     string
	GatewayResponse   string // gateway's own response code/message for the charge
	CreatedAt         time.Time
	AuthorizationCode string // reusable charge authorization, kept for retries
	Raw               map[string]any
}

// Verifier fetches a transaction's authoritative state by reference.
// Implementations are read-only and side-effect free, safe to call
// concurrently and repeatedly.
type Verifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
}
