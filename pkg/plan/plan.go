package plan

import "time"

// BillingInterval is the billing frequency of a plan.
type BillingInterval string

const (
	IntervalNone    BillingInterval = "none" // free plans with no billing
	IntervalMonthly BillingInterval = "monthly"
	IntervalAnnual  BillingInterval = "annual"
)

// Plan describes a purchasable subscription plan. Amount is kept in the
// smallest currency unit (e.g. 15999 for 159.99) so price comparisons never
// touch floating point.
type Plan struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Amount      int64           `yaml:"amount"`
	Currency    string          `yaml:"currency"`
	Interval    BillingInterval `yaml:"interval"`
	TrialDays   int             `yaml:"trial_days"`
}

// IsFree reports whether the plan bypasses the payment gateway entirely.
func (p Plan) IsFree() bool {
	return p.Amount == 0 || p.Interval == IntervalNone
}

// TrialEndsAt calculates when a trial started at the given time ends.
// Returns startedAt unchanged if the plan has no trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// PeriodEnd calculates the end of a billing period started at the given time.
func (p Plan) PeriodEnd(startedAt time.Time) time.Time {
	switch p.Interval {
	case IntervalAnnual:
		return startedAt.AddDate(1, 0, 0).UTC()
	case IntervalMonthly:
		return startedAt.AddDate(0, 1, 0).UTC()
	default:
		return startedAt.UTC()
	}
}
