package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/renewkit/renewkit/pkg/docstore"
)

// Inconsistency is one divergent field between the two records, reported
// with both values so a corrective delta can be built from the report.
type Inconsistency struct {
	Field             string `json:"field"`
	AccountValue      any    `json:"accountValue"`
	SubscriptionValue any    `json:"subscriptionValue"`
}

// ConsistencyReport is the outcome of a cross-record check. The check is
// diagnostic: it reads non-atomically and never mutates. Repair happens by
// re-invoking the Updater with a corrective delta as a separate, audited
// operation.
type ConsistencyReport struct {
	UserID          string          `json:"userId"`
	IsConsistent    bool            `json:"isConsistent"`
	Inconsistencies []Inconsistency `json:"inconsistencies,omitempty"`
	CheckedAt       time.Time       `json:"checkedAt"`
}

// Checker compares the Account summary against the Subscription detail
// record for a user.
type Checker struct {
	store docstore.Store
	now   func() time.Time
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckerClock injects a clock for deterministic end-date checks.
func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChecker builds a consistency checker over the store.
func NewChecker(store docstore.Store, opts ...CheckerOption) *Checker {
	if store == nil {
		panic("lifecycle: store cannot be nil")
	}

	c := &Checker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check reads both records and reports every field-level divergence. A user
// with neither record is consistent; an account claiming an active or trial
// subscription without a subscription record is not.
func (c *Checker) Check(ctx context.Context, userID string) (*ConsistencyReport, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	report := &ConsistencyReport{
		UserID:       userID,
		IsConsistent: true,
		CheckedAt:    c.now().UTC(),
	}

	accountDoc, accountErr := c.store.Get(ctx, CollectionAccounts, userID)
	if accountErr != nil && !errors.Is(accountErr, docstore.ErrNotFound) {
		return nil, accountErr
	}
	subDoc, subErr := c.store.Get(ctx, CollectionSubscriptions, userID)
	if subErr != nil && !errors.Is(subErr, docstore.ErrNotFound) {
		return nil, subErr
	}

	hasAccount := accountErr == nil
	hasSub := subErr == nil

	switch {
	case !hasAccount && !hasSub:
		return report, nil
	case !hasSub:
		account := accountFromDoc(userID, accountDoc)
		if account.SubscriptionStatus == StatusActive || account.SubscriptionStatus == StatusTrial {
			report.add("subscriptionRecord", string(account.SubscriptionStatus), nil)
		}
		return report, nil
	case !hasAccount:
		sub := subscriptionFromDoc(userID, subDoc)
		report.add("accountRecord", nil, string(sub.Status))
		return report, nil
	}

	account := accountFromDoc(userID, accountDoc)
	sub := subscriptionFromDoc(userID, subDoc)

	if account.SubscriptionStatus != sub.Status {
		report.add("status", string(account.SubscriptionStatus), string(sub.Status))
	}
	if account.SubscriptionPlan != sub.PlanID {
		report.add("plan", account.SubscriptionPlan, sub.PlanID)
	}
	if account.SubscriptionReference != sub.Reference {
		report.add("reference", account.SubscriptionReference, sub.Reference)
	}
	if !account.SubscriptionEnd.IsZero() && !sub.EndDate.IsZero() && !account.SubscriptionEnd.Equal(sub.EndDate) {
		report.add("endDate", account.SubscriptionEnd, sub.EndDate)
	}

	// An active account must be backed by an unexpired subscription.
	if account.SubscriptionStatus == StatusActive && sub.Status == StatusActive &&
		!sub.EndDate.IsZero() && sub.EndDate.Before(c.now().UTC()) {
		report.add("endDateExpired", string(StatusActive), sub.EndDate)
	}

	return report, nil
}

func (r *ConsistencyReport) add(field string, accountValue, subscriptionValue any) {
	r.IsConsistent = false
	r.Inconsistencies = append(r.Inconsistencies, Inconsistency{
		Field:             field,
		AccountValue:      accountValue,
		SubscriptionValue: subscriptionValue,
	})
}
