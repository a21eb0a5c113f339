package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/renewkit/renewkit/pkg/audit"
	"github.com/renewkit/renewkit/pkg/docstore"
	"github.com/renewkit/renewkit/pkg/gateway"
	"github.com/renewkit/renewkit/pkg/logger"
	"github.com/renewkit/renewkit/pkg/statemachine"
)

// Retry lifecycle states and events for the closed transition table.
const (
	retryStateNone      = statemachine.StringState("none")
	retryStateScheduled = statemachine.StringState(RetryScheduled)
	retryStateGrace     = statemachine.StringState(RetryGracePeriod)
	retryStateActive    = statemachine.StringState("active")
	retryStateCancelled = statemachine.StringState("cancelled")

	retryEventFailure   = statemachine.StringEvent("payment_failed")
	retryEventRetryFail = statemachine.StringEvent("retry_failed")
	retryEventSuccess   = statemachine.StringEvent("payment_succeeded")
	retryEventCancel    = statemachine.StringEvent("cancelled")
)

// retryMachine builds the payment-retry state machine positioned at the
// episode's current state. Guard-based branching sends a failed retry back
// to retry_scheduled while attempts remain and to grace_period once the
// maximum is reached; success recovers to active from any non-terminal
// state, including mid grace period.
func retryMachine(current statemachine.State) *statemachine.Machine {
	attemptsRemain := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
		pr, ok := data.(*PaymentRetry)
		return ok && pr.RetryAttempts < pr.MaxRetries
	}

	return statemachine.MustNew(current,
		statemachine.WithTransition(retryStateNone, retryStateScheduled, retryEventFailure),
		statemachine.WithTransition(retryStateScheduled, retryStateScheduled, retryEventRetryFail,
			statemachine.WithGuard(attemptsRemain),
		),
		statemachine.WithTransition(retryStateScheduled, retryStateGrace, retryEventRetryFail),
		statemachine.WithTransition(retryStateScheduled, retryStateActive, retryEventSuccess),
		statemachine.WithTransition(retryStateGrace, retryStateActive, retryEventSuccess),
		statemachine.WithTransition(retryStateScheduled, retryStateCancelled, retryEventCancel),
		statemachine.WithTransition(retryStateGrace, retryStateCancelled, retryEventCancel),
	)
}

func retryStateOf(sub *Subscription) statemachine.State {
	if sub == nil || sub.PaymentRetry == nil {
		return retryStateNone
	}
	switch sub.PaymentRetry.Status {
	case RetryScheduled:
		return retryStateScheduled
	case RetryGracePeriod:
		return retryStateGrace
	default:
		return retryStateNone
	}
}

// Charger executes a charge against a stored payment authorization.
// *gateway.Client satisfies it; tests substitute a stub.
type Charger interface {
	ChargeAuthorization(ctx context.Context, email, authorizationCode string, amount int64, currency string) (*gateway.ChargeResult, error)
}

// FailureDetail captures why a payment failed, for the audit trail and the
// retry history.
type FailureDetail struct {
	Reference    string
	GatewayError string
}

// Scheduler drives the payment-failure episode: it decides whether and when
// to retry, records outcomes, and flips exhausted episodes into the grace
// period. Every record write goes through the Updater; the scheduler never
// writes records itself.
type Scheduler struct {
	store   docstore.Store
	updater *Updater
	trail   *audit.Trail
	charger Charger
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock injects a clock for deterministic due-date checks.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler builds the retry and grace-period scheduler.
func NewScheduler(store docstore.Store, updater *Updater, trail *audit.Trail, charger Charger, cfg Config, log *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if store == nil || updater == nil || trail == nil {
		panic("lifecycle: scheduler dependencies cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		store:   store,
		updater: updater,
		trail:   trail,
		charger: charger,
		cfg:     cfg.withDefaults(),
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleFailure opens a failure episode for the user: the account and
// subscription flip to payment_failed and the updater synthesizes the
// retry-tracking fields into the subscription record.
func (s *Scheduler) HandleFailure(ctx context.Context, userID string, detail FailureDetail) error {
	if userID == "" {
		return ErrMissingUserID
	}

	sub, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}

	machine := retryMachine(retryStateOf(sub))
	if err := machine.Fire(ctx, retryEventFailure, sub.PaymentRetry); err != nil {
		// A failure webhook arriving mid-episode does not reset the
		// schedule; the pending retry already covers it.
		if statemachine.IsNoTransitionAvailableError(err) {
			s.log.InfoContext(ctx, "payment failure ignored, episode already open",
				logger.UserID(userID),
			)
			return nil
		}
		return err
	}

	accountDelta := Delta{fieldSubscriptionStatus: string(StatusPaymentFailed)}
	subscriptionDelta := Delta{fieldStatus: string(StatusPaymentFailed)}

	return s.updater.Apply(ctx, userID, accountDelta, subscriptionDelta, OpPaymentFailure,
		WithReference(detail.Reference),
		WithEventData(map[string]any{
			"gatewayError": detail.GatewayError,
		}),
	)
}

// ExecuteRetry performs the next due charge attempt for the user and records
// its outcome. Returns ErrNoRetryScheduled when no episode is open and
// ErrRetryNotDue when the next attempt lies in the future. Grace period
// never auto-retries.
func (s *Scheduler) ExecuteRetry(ctx context.Context, userID string) error {
	if s.charger == nil {
		return errors.New("lifecycle: no charger configured")
	}

	sub, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}
	pr := sub.PaymentRetry
	if pr == nil || pr.Status != RetryScheduled {
		return ErrNoRetryScheduled
	}
	if s.now().UTC().Before(pr.NextRetryDate) {
		return ErrRetryNotDue
	}

	result, err := s.charger.ChargeAuthorization(ctx, sub.CustomerEmail, sub.AuthorizationCode, sub.Amount, sub.Currency)
	if err != nil {
		// Transient gateway fault: the attempt did not happen, so the
		// episode's counters stay untouched and the retry stays due.
		s.log.WarnContext(ctx, "retry charge unavailable",
			logger.UserID(userID),
			logger.Error(err),
		)
		return fmt.Errorf("retry charge: %w", err)
	}

	if result.Success {
		return s.RecordSuccess(ctx, userID, result.Reference)
	}
	return s.RecordFailure(ctx, userID, FailureDetail{
		Reference:    result.Reference,
		GatewayError: result.GatewayResponse,
	})
}

// RecordSuccess closes the episode: paymentRetry is cleared to null and the
// subscription restored to active, regardless of how many attempts failed
// before, including during the grace period.
func (s *Scheduler) RecordSuccess(ctx context.Context, userID, reference string) error {
	sub, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}

	machine := retryMachine(retryStateOf(sub))
	if err := machine.Fire(ctx, retryEventSuccess, sub.PaymentRetry); err != nil {
		return fmt.Errorf("retry success from state %s: %w", retryStateOf(sub).Name(), err)
	}

	accountDelta := Delta{
		fieldSubscriptionStatus: string(StatusActive),
		fieldPlan:               string(PlanPremium),
	}
	// Embedded payment_retry_success behavior clears paymentRetry and sets
	// status active in the subscription delta.
	return s.updater.Apply(ctx, userID, accountDelta, Delta{}, OpPaymentRetrySuccess,
		WithReference(reference),
		WithEventData(map[string]any{
			"attemptsBeforeSuccess": attemptCount(sub),
		}),
	)
}

// RecordFailure advances the episode by one attempt: the attempt is added
// to retryHistory and the machine either reschedules or, once attempts
// reach the maximum, enters the grace period.
func (s *Scheduler) RecordFailure(ctx context.Context, userID string, detail FailureDetail) error {
	sub, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}
	pr := sub.PaymentRetry
	if pr == nil {
		return ErrNoRetryScheduled
	}

	now := s.now().UTC()
	next := &PaymentRetry{
		RetryAttempts:  pr.RetryAttempts + 1,
		MaxRetries:     pr.MaxRetries,
		NextRetryDate:  now.Add(s.cfg.RetryInterval),
		GracePeriodEnd: pr.GracePeriodEnd,
		Status:         pr.Status,
		RetryHistory: append(append([]RetryAttempt{}, pr.RetryHistory...), RetryAttempt{
			Attempt:      pr.RetryAttempts + 1,
			AttemptedAt:  now,
			Reference:    detail.Reference,
			GatewayError: detail.GatewayError,
		}),
	}

	machine := retryMachine(retryStateOf(sub))
	if err := machine.Fire(ctx, retryEventRetryFail, next); err != nil {
		return fmt.Errorf("retry failure from state %s: %w", retryStateOf(sub).Name(), err)
	}
	exhausted := machine.Current() == retryStateGrace
	if exhausted {
		next.Status = RetryGracePeriod
	}

	subscriptionDelta := Delta{fieldPaymentRetry: paymentRetryDoc(next)}
	if err := s.updater.Apply(ctx, userID, nil, subscriptionDelta, OpPaymentRetryFailed,
		WithReference(detail.Reference),
		WithEventData(map[string]any{
			"attempt":      next.RetryAttempts,
			"maxRetries":   next.MaxRetries,
			"gatewayError": detail.GatewayError,
		}),
	); err != nil {
		return err
	}

	if exhausted {
		// Informational entry prompting the user to fix their payment
		// method; the mutation itself was audited atomically above.
		if err := s.trail.Record(ctx, userID, "grace_period_activated",
			audit.WithData("gracePeriodEnd", next.GracePeriodEnd),
			audit.WithData("failedAttempts", next.RetryAttempts),
		); err != nil {
			s.log.ErrorContext(ctx, "failed to record grace period audit entry",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) loadSubscription(ctx context.Context, userID string) (*Subscription, error) {
	doc, err := s.store.Get(ctx, CollectionSubscriptions, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return subscriptionFromDoc(userID, doc), nil
}

func attemptCount(sub *Subscription) int {
	if sub == nil || sub.PaymentRetry == nil {
		return 0
	}
	return sub.PaymentRetry.RetryAttempts
}
