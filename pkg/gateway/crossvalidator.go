package gateway

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Outcome classifies a cross-validation run.
type Outcome string

const (
	// OutcomeVerified means every check passed against the gateway's record.
	OutcomeVerified Outcome = "verified"
	// OutcomeRejected means at least one check failed; details name each.
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnavailable means the gateway could not be reached; the
	// transaction is neither confirmed nor rejected and must be retried.
	OutcomeUnavailable Outcome = "unavailable"
)

// Check is a single cross-validation comparison with both sides recorded,
// so a failed verification can be investigated without re-querying.
type Check struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
}

// CrossCheck is the structured result of validating an inbound payment
// claim against the gateway's own record. Never reduced to a bare boolean.
type CrossCheck struct {
	Outcome     Outcome
	Checks      []Check
	Transaction *Transaction // populated unless Outcome is OutcomeUnavailable
	Err         error        // cause when Outcome is OutcomeUnavailable
}

// Verified reports whether every check passed.
func (c *CrossCheck) Verified() bool {
	return c.Outcome == OutcomeVerified
}

// Failures returns only the checks that did not pass.
func (c *CrossCheck) Failures() []Check {
	var out []Check
	for _, check := range c.Checks {
		if !check.Passed {
			out = append(out, check)
		}
	}
	return out
}

// Expectation is what the inbound request claims about a payment.
type Expectation struct {
	Reference string
	Amount    int64 // minor currency units
	Email     string
}

// CrossValidatorConfig tunes the validation thresholds.
type CrossValidatorConfig struct {
	// Currency is the operating currency every transaction must settle in.
	Currency string `env:"GATEWAY_CURRENCY" envDefault:"NGN"`
	// AmountTolerance is the allowed absolute difference in minor units.
	AmountTolerance int64 `env:"GATEWAY_AMOUNT_TOLERANCE" envDefault:"1"`
	// FreshnessWindow bounds the transaction's age; older confirmations
	// are treated as replays.
	FreshnessWindow time.Duration `env:"GATEWAY_FRESHNESS_WINDOW" envDefault:"60m"`
}

// CrossValidator re-derives the truth of a payment from the gateway's
// verification endpoint and cross-checks it against the inbound claim.
type CrossValidator struct {
	verifier Verifier
	cfg      CrossValidatorConfig
	now      func() time.Time
}

// CrossValidatorOption configures a CrossValidator.
type CrossValidatorOption func(*CrossValidator)

// WithClock injects a clock for deterministic freshness checks in tests.
func WithClock(now func() time.Time) CrossValidatorOption {
	return func(v *CrossValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewCrossValidator builds a validator over a Verifier.
func NewCrossValidator(verifier Verifier, cfg CrossValidatorConfig, opts ...CrossValidatorOption) *CrossValidator {
	if verifier == nil {
		panic("gateway: verifier is required")
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 60 * time.Minute
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = 1
	}

	v := &CrossValidator{verifier: verifier, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate fetches the gateway's record and runs every check, collecting
// per-check detail rather than short-circuiting, so a rejection names all
// divergent fields at once.
func (v *CrossValidator) Validate(ctx context.Context, expected Expectation) *CrossCheck {
	txn, err := v.verifier.VerifyTransaction(ctx, expected.Reference)
	if err != nil {
		if errors.Is(err, ErrVerificationUnavailable) {
			return &CrossCheck{Outcome: OutcomeUnavailable, Err: err}
		}
		// Definitive gateway answers (not found, explicit rejection) are
		// rejections, not transient faults.
		return &CrossCheck{
			Outcome: OutcomeRejected,
			Checks: []Check{{
				Name:     "transaction_exists",
				Passed:   false,
				Expected: expected.Reference,
				Actual:   err.Error(),
			}},
		}
	}

	diff := txn.Amount - expected.Amount
	if diff < 0 {
		diff = -diff
	}

	age := v.now().UTC().Sub(txn.CreatedAt.UTC())

	checks := []Check{
		{
			Name:     "status_success",
			Passed:   txn.Status == "success",
			Expected: "success",
			Actual:   txn.Status,
		},
		{
			Name:     "amount_match",
			Passed:   diff <= v.cfg.AmountTolerance,
			Expected: expected.Amount,
			Actual:   txn.Amount,
		},
		{
			Name:     "email_match",
			Passed:   strings.EqualFold(txn.CustomerEmail, expected.Email),
			Expected: strings.ToLower(expected.Email),
			Actual:   strings.ToLower(txn.CustomerEmail),
		},
		{
			Name:     "reference_match",
			Passed:   txn.Reference == expected.Reference,
			Expected: expected.Reference,
			Actual:   txn.Reference,
		},
		{
			Name:     "currency_match",
			Passed:   strings.EqualFold(txn.Currency, v.cfg.Currency),
			Expected: v.cfg.Currency,
			Actual:   txn.Currency,
		},
		{
			Name:     "gateway_response_success",
			Passed:   isApprovedResponse(txn.GatewayResponse),
			Expected: "approved",
			Actual:   txn.GatewayResponse,
		},
		{
			Name:     "transaction_fresh",
			Passed:   !txn.CreatedAt.IsZero() && age >= 0 && age <= v.cfg.FreshnessWindow,
			Expected: v.cfg.FreshnessWindow.String(),
			Actual:   age.String(),
		},
	}

	outcome := OutcomeVerified
	for _, check := range checks {
		if !check.Passed {
			outcome = OutcomeRejected
			break
		}
	}

	return &CrossCheck{Outcome: outcome, Checks: checks, Transaction: txn}
}

// isApprovedResponse accepts the gateway's success vocabulary.
func isApprovedResponse(response string) bool {
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "successful", "approved", "[approved]", "approved or completed successfully", "success":
		return true
	default:
		return false
	}
}
