package plan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrPlanNotFound        = errors.New("subscription plan not found")
	ErrInvalidPlan          = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans    = errors.New("failed to load subscription plans")
	ErrNoPlansConfigured    = errors.New("at least one plan is required")
	ErrDuplicatePlanID      = errors.New("duplicate plan ID")
	ErrInconsistentCurrency = errors.New("all plans must share the operating currency")
)

// Source loads the plan set the catalog serves.
type Source interface {
	Load(ctx context.Context) ([]Plan, error)
}

// Catalog is the fixed set of purchasable plans, looked up case-insensitively
// by ID. It validates the configuration once at construction and is immutable
// afterwards, so it is safe for concurrent use.
type Catalog struct {
	plans    map[string]Plan // keyed by upper-cased ID
	ordered  []string        // valid IDs in load order, for rejection messages
	currency string
}

// NewCatalog loads plans from the source and validates them.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(plans) == 0 {
		return nil, ErrNoPlansConfigured
	}

	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if p.ID == "" {
			return nil, errors.Join(ErrInvalidPlan, errors.New("plan ID is empty"))
		}
		if p.Amount < 0 {
			return nil, errors.Join(ErrInvalidPlan,
				fmt.Errorf("plan %s has negative amount %d", p.ID, p.Amount))
		}
		if p.TrialDays < 0 {
			return nil, errors.Join(ErrInvalidPlan,
				fmt.Errorf("plan %s has negative trial days %d", p.ID, p.TrialDays))
		}

		key := normalizeID(p.ID)
		if _, exists := c.plans[key]; exists {
			return nil, errors.Join(ErrDuplicatePlanID, errors.New(p.ID))
		}

		if !p.IsFree() {
			if c.currency == "" {
				c.currency = strings.ToUpper(p.Currency)
			} else if !strings.EqualFold(c.currency, p.Currency) {
				return nil, errors.Join(ErrInconsistentCurrency,
					fmt.Errorf("plan %s is priced in %s, catalog uses %s", p.ID, p.Currency, c.currency))
			}
		}

		c.plans[key] = p
		c.ordered = append(c.ordered, p.ID)
	}

	return c, nil
}

// Lookup resolves a plan by ID, ignoring case and surrounding whitespace.
func (c *Catalog) Lookup(id string) (Plan, error) {
	p, ok := c.plans[normalizeID(id)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// ExpectedAmount returns the catalog price of the plan in minor units.
func (c *Catalog) ExpectedAmount(id string) (int64, error) {
	p, err := c.Lookup(id)
	if err != nil {
		return 0, err
	}
	return p.Amount, nil
}

// ValidIDs lists the configured plan IDs, for rejection messages.
func (c *Catalog) ValidIDs() []string {
	return slices.Clone(c.ordered)
}

// Currency returns the operating currency shared by all paid plans.
func (c *Catalog) Currency() string {
	return c.currency
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// StaticSource serves a fixed plan list from memory.
type StaticSource []Plan

func (s StaticSource) Load(ctx context.Context) ([]Plan, error) {
	return slices.Clone(s), nil
}
