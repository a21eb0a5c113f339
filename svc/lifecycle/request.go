package lifecycle

import (
	"fmt"
	"strings"

	"github.com/renewkit/renewkit/pkg/plan"
	"github.com/renewkit/renewkit/pkg/sanitizer"
	"github.com/renewkit/renewkit/pkg/validator"
)

// Identity is the already-authenticated caller of the initiation endpoint.
type Identity struct {
	ID    string
	Email string
}

// InitiationRequest is the raw inbound body of a subscription-initiation
// call, before sanitization.
type InitiationRequest struct {
	PlanID   string         `json:"planId"`
	Amount   *int64         `json:"amount,omitempty"` // claimed minor-unit amount, optional
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ValidatedRequest is the sanitized, typed result of request validation.
// The amount is always the catalog's price, never the caller's claim.
type ValidatedRequest struct {
	UserID   string
	Email    string
	Plan     plan.Plan
	Amount   int64
	Metadata map[string]any
}

// RequestValidator protects the initiation endpoint: it runs before any
// payment exists and is distinct from the payment cross-validator, which
// runs after the gateway reports success.
type RequestValidator struct {
	catalog         *plan.Catalog
	amountTolerance int64
}

// NewRequestValidator builds the validator over the plan catalog.
func NewRequestValidator(catalog *plan.Catalog, amountTolerance int64) *RequestValidator {
	if catalog == nil {
		panic("lifecycle: plan catalog cannot be nil")
	}
	if amountTolerance < 0 {
		amountTolerance = 0
	}
	return &RequestValidator{catalog: catalog, amountTolerance: amountTolerance}
}

// Validate produces a sanitized request or a validator.ValidationErrors
// naming every failed field.
func (v *RequestValidator) Validate(identity Identity, req InitiationRequest) (*ValidatedRequest, error) {
	if err := validator.Apply(
		validator.Required("userId", identity.ID),
		validator.ValidEmail("email", identity.Email),
	); err != nil {
		return nil, err
	}

	planID := sanitizer.Apply(req.PlanID,
		sanitizer.StripHTML,
		sanitizer.RemoveControlChars,
		sanitizer.TrimToUpper,
	)
	if planID == "" {
		return nil, validator.ValidationErrors{{
			Field:   "planId",
			Message: "plan ID is required",
		}}
	}

	resolved, err := v.catalog.Lookup(planID)
	if err != nil {
		return nil, validator.ValidationErrors{{
			Field:   "planId",
			Message: fmt.Sprintf("unknown plan %q, valid plans: %s", planID, strings.Join(v.catalog.ValidIDs(), ", ")),
		}}
	}

	if req.Amount != nil {
		diff := *req.Amount - resolved.Amount
		if diff < 0 {
			diff = -diff
		}
		if diff > v.amountTolerance {
			return nil, validator.ValidationErrors{{
				Field:   "amount",
				Message: fmt.Sprintf("amount %d does not match plan price %d", *req.Amount, resolved.Amount),
			}}
		}
	}

	return &ValidatedRequest{
		UserID:   identity.ID,
		Email:    strings.TrimSpace(identity.Email),
		Plan:     resolved,
		Amount:   resolved.Amount,
		Metadata: stripDangerousKeys(req.Metadata),
	}, nil
}

// dangerousKeys are prototype-pollution vectors stripped recursively from
// caller-supplied metadata before it is stored or forwarded.
var dangerousKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

func stripDangerousKeys(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if _, dangerous := dangerousKeys[strings.ToLower(strings.TrimSpace(k))]; dangerous {
			continue
		}
		out[k] = stripDangerousValue(v)
	}
	return out
}

func stripDangerousValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return stripDangerousKeys(value)
	case []any:
		out := make([]any, 0, len(value))
		for _, item := range value {
			out = append(out, stripDangerousValue(item))
		}
		return out
	default:
		return v
	}
}
