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
	"github.com/renewkit/renewkit/pkg/plan"
	"github.com/renewkit/renewkit/pkg/webhookauth"
)

// Initializer starts a hosted payment at the gateway. *gateway.Client
// satisfies it.
type Initializer interface {
	InitializeTransaction(ctx context.Context, req gateway.InitializationRequest) (*gateway.Initialization, error)
}

// WebhookResult is what the transport layer returns to the sender. The
// sender always receives HTTP 200 so it does not hot-retry; Processed and
// Reason carry the internal outcome.
type WebhookResult struct {
	Received  bool      `json:"received"`
	Processed bool      `json:"processed"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InitiationResult is the payment-initiation payload for a validated
// subscription request.
type InitiationResult struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	Reference        string `json:"reference"`
}

// Deps wires the engine's collaborators into a Service.
type Deps struct {
	Store          docstore.Store
	Trail          *audit.Trail
	Reader         *audit.Reader
	Webhooks       *webhookauth.Validator
	CrossValidator *gateway.CrossValidator
	Initializer    Initializer
	Charger        Charger
	Catalog        *plan.Catalog
	Config         Config
	Logger         *slog.Logger
}

// Service composes the lifecycle engine: webhook handling, subscription
// initiation, cancellation, trial conversion, renewal, retry scheduling,
// and consistency checking. All record writes flow through its Updater.
type Service struct {
	store     docstore.Store
	trail     *audit.Trail
	reader    *audit.Reader
	webhooks  *webhookauth.Validator
	crossval  *gateway.CrossValidator
	initier   Initializer
	catalog   *plan.Catalog
	updater   *Updater
	scheduler *Scheduler
	checker   *Checker
	requests  *RequestValidator
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock injects a clock for deterministic billing windows.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the engine from its collaborators.
func NewService(deps Deps, opts ...ServiceOption) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("lifecycle: store is required")
	}
	if deps.Trail == nil {
		return nil, errors.New("lifecycle: audit trail is required")
	}
	if deps.Reader == nil {
		return nil, errors.New("lifecycle: audit reader is required")
	}
	if deps.Webhooks == nil {
		return nil, errors.New("lifecycle: webhook validator is required")
	}
	if deps.CrossValidator == nil {
		return nil, errors.New("lifecycle: payment cross-validator is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("lifecycle: plan catalog is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	cfg := deps.Config.withDefaults()
	s := &Service{
		store:    deps.Store,
		trail:    deps.Trail,
		reader:   deps.Reader,
		webhooks: deps.Webhooks,
		crossval: deps.CrossValidator,
		initier:  deps.Initializer,
		catalog:  deps.Catalog,
		requests: NewRequestValidator(deps.Catalog, 1),
		cfg:      cfg,
		log:      deps.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// The sub-components share the service clock so billing windows, retry
	// due dates, and consistency timestamps agree.
	s.updater = NewUpdater(deps.Store, deps.Trail, cfg, deps.Logger, WithUpdaterClock(s.now))
	s.scheduler = NewScheduler(deps.Store, s.updater, deps.Trail, deps.Charger, cfg, deps.Logger, WithSchedulerClock(s.now))
	s.checker = NewChecker(deps.Store, WithCheckerClock(s.now))
	return s, nil
}

// Updater exposes the single permitted write path for corrective repairs
// driven by consistency reports.
func (s *Service) Updater() *Updater { return s.updater }

// Scheduler exposes the retry scheduler for the external job that executes
// due retries.
func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// HandleWebhook processes one inbound gateway event end to end:
// authenticity, user resolution, idempotency, cross-validation, and
// dispatch. It never returns an error for expected outcomes; the transport
// acknowledges with 200 either way.
func (s *Service) HandleWebhook(ctx context.Context, raw webhookauth.RawEvent) *WebhookResult {
	authRes := s.webhooks.Validate(ctx, raw)
	if !authRes.Valid {
		return s.unprocessed(string(authRes.Reason))
	}
	event := authRes.Event

	userID := s.resolveUser(ctx, event)
	if userID == "" {
		s.log.WarnContext(ctx, "webhook does not resolve to a user",
			logger.EventType(string(event.Name)),
			logger.Reference(event.Reference()),
		)
		return s.unprocessed("unknown_user")
	}

	if reference := event.Reference(); reference != "" {
		duplicate, err := s.reader.HasReference(ctx, reference)
		if err != nil {
			// Fail open: an unavailable audit lookup must not block payment
			// processing. The breadcrumb makes the gap auditable.
			s.log.WarnContext(ctx, "duplicate-reference check failed, continuing",
				logger.Reference(reference),
				logger.Error(err),
			)
			if auditErr := s.trail.Record(ctx, userID, "duplicate_check_failed",
				audit.WithData("reference", reference),
				audit.WithData("error", err.Error()),
			); auditErr != nil {
				s.log.ErrorContext(ctx, "failed to record duplicate-check breadcrumb",
					logger.Error(auditErr),
				)
			}
		} else if duplicate {
			return &WebhookResult{
				Received:  true,
				Processed: true,
				Reason:    "duplicate_reference",
				Timestamp: s.now().UTC(),
			}
		}
	}

	switch event.Name {
	case webhookauth.EventChargeSuccess:
		return s.handleChargeSuccess(ctx, userID, event)

	case webhookauth.EventInvoicePaymentFailed:
		if err := s.scheduler.HandleFailure(ctx, userID, FailureDetail{
			Reference:    event.Reference(),
			GatewayError: eventGatewayResponse(event),
		}); err != nil {
			s.log.ErrorContext(ctx, "payment failure handling failed",
				logger.UserID(userID),
				logger.Error(err),
			)
			return s.unprocessed("failure_handling_error")
		}
		return s.processed("")

	case webhookauth.EventSubscriptionCreate:
		if err := s.linkProvider(ctx, userID, event); err != nil {
			return s.unprocessed("provider_link_error")
		}
		return s.processed("")

	case webhookauth.EventSubscriptionDisable:
		if err := s.CancelSubscription(ctx, userID, "gateway_disable"); err != nil {
			s.log.ErrorContext(ctx, "webhook cancellation failed",
				logger.UserID(userID),
				logger.Error(err),
			)
			return s.unprocessed("cancellation_error")
		}
		return s.processed("")

	case webhookauth.EventSubscriptionNotRenew:
		if err := s.updater.Apply(ctx, userID, nil, Delta{fieldAutoRenew: false}, OpSubscriptionNonRenewal); err != nil {
			return s.unprocessed("nonrenewal_error")
		}
		return s.processed("")

	case webhookauth.EventInvoiceUpdate:
		if err := s.updater.Apply(ctx, userID, nil, Delta{fieldRawPayload: event.Data}, OpInvoiceUpdate); err != nil {
			return s.unprocessed("invoice_update_error")
		}
		return s.processed("")

	default:
		return s.unprocessed("unhandled_event")
	}
}

// handleChargeSuccess cross-validates the charge against the gateway's own
// record, then applies creation, renewal, trial conversion, or retry
// recovery in one atomic operation.
func (s *Service) handleChargeSuccess(ctx context.Context, userID string, event *webhookauth.Event) *WebhookResult {
	sub, err := s.loadSubscription(ctx, userID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return s.unprocessed("store_error")
	}

	resolved, ok := s.resolvePlan(event, sub)
	if !ok {
		s.log.WarnContext(ctx, "charge does not resolve to a catalog plan",
			logger.UserID(userID),
			logger.PlanID(event.Plan()),
		)
		return s.unprocessed("unknown_plan")
	}

	check := s.crossval.Validate(ctx, gateway.Expectation{
		Reference: event.Reference(),
		Amount:    resolved.Amount,
		Email:     event.CustomerEmail(),
	})
	switch check.Outcome {
	case gateway.OutcomeUnavailable:
		return s.unprocessed("verification_unavailable")
	case gateway.OutcomeRejected:
		s.recordVerificationFailure(ctx, userID, event.Reference(), check)
		return s.unprocessed("verification_rejected")
	}

	opTag := OpSubscriptionRenewal
	switch {
	case sub == nil:
		opTag = OpSubscriptionCreation
	case sub.PaymentRetry != nil:
		opTag = OpPaymentRetrySuccess
	case sub.Status == StatusTrial || sub.Status == StatusTrialIncomplete:
		opTag = OpTrialConversion
	}

	accountDelta, subscriptionDelta := s.activationDeltas(resolved, check.Transaction, event)
	if err := s.updater.Apply(ctx, userID, accountDelta, subscriptionDelta, opTag,
		WithReference(event.Reference()),
		WithEventData(map[string]any{
			"plan":   resolved.ID,
			"amount": check.Transaction.Amount,
		}),
	); err != nil {
		return s.unprocessed("update_failed")
	}
	return s.processed("")
}

// activationDeltas builds the dual-record delta for a verified charge: both
// records active on the resolved plan with a fresh billing window.
func (s *Service) activationDeltas(resolved plan.Plan, txn *gateway.Transaction, event *webhookauth.Event) (Delta, Delta) {
	now := s.now().UTC()
	periodEnd := resolved.PeriodEnd(now)

	accountDelta := Delta{
		fieldPlan:                  string(PlanPremium),
		fieldSubscriptionStatus:    string(StatusActive),
		fieldSubscriptionPlan:      resolved.ID,
		fieldSubscriptionReference: txn.Reference,
		fieldSubscriptionStart:     now,
		fieldSubscriptionEnd:       periodEnd,
	}
	subscriptionDelta := Delta{
		fieldPlanID:        resolved.ID,
		fieldStatus:        string(StatusActive),
		fieldReference:     txn.Reference,
		fieldAmount:        txn.Amount,
		fieldCurrency:      txn.Currency,
		fieldStartDate:     now,
		fieldEndDate:       periodEnd,
		fieldCustomerEmail: txn.CustomerEmail,
		fieldAutoRenew:     true,
		fieldRawPayload:    event.Data,
	}
	if txn.AuthorizationCode != "" {
		subscriptionDelta[fieldAuthCode] = txn.AuthorizationCode
	}
	if code := event.SubscriptionCode(); code != "" {
		accountDelta[fieldSubscriptionCode] = code
		subscriptionDelta[fieldSubscriptionCode] = code
	}
	return accountDelta, subscriptionDelta
}

// linkProvider records the gateway's correlation codes when the gateway
// announces the subscription object it created.
func (s *Service) linkProvider(ctx context.Context, userID string, event *webhookauth.Event) error {
	accountDelta := Delta{}
	subscriptionDelta := Delta{}
	if code := event.SubscriptionCode(); code != "" {
		accountDelta[fieldSubscriptionCode] = code
		accountDelta[fieldExternalSubID] = code
		subscriptionDelta[fieldSubscriptionCode] = code
	}
	if customer, ok := event.Data["customer"].(map[string]any); ok {
		if code, ok := customer["customer_code"].(string); ok && code != "" {
			accountDelta[fieldCustomerCode] = code
			subscriptionDelta[fieldCustomerCode] = code
		}
	}
	if len(accountDelta) == 0 && len(subscriptionDelta) == 0 {
		return nil
	}
	return s.updater.Apply(ctx, userID, accountDelta, subscriptionDelta, OpProviderLink)
}

// InitiateSubscription validates a new-subscription request and opens a
// hosted payment at the gateway. No record is written until the gateway
// confirms the charge by webhook.
func (s *Service) InitiateSubscription(ctx context.Context, identity Identity, req InitiationRequest) (*InitiationResult, error) {
	if s.initier == nil {
		return nil, errors.New("lifecycle: no gateway initializer configured")
	}

	validated, err := s.requests.Validate(identity, req)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"userId": validated.UserID}
	for k, v := range validated.Metadata {
		metadata[k] = v
	}

	init, err := s.initier.InitializeTransaction(ctx, gateway.InitializationRequest{
		Email:    validated.Email,
		Amount:   validated.Amount,
		Currency: s.catalog.Currency(),
		PlanID:   validated.Plan.ID,
		Metadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	// The reference stays in the payload, not the indexed field: no money
	// has moved yet, and the charge webhook for this same reference must
	// not be deduplicated away.
	if err := s.trail.Record(ctx, validated.UserID, "subscription_initiated",
		audit.WithData("reference", init.Reference),
		audit.WithData("plan", validated.Plan.ID),
		audit.WithData("amount", validated.Amount),
	); err != nil {
		s.log.ErrorContext(ctx, "failed to record initiation audit entry",
			logger.UserID(validated.UserID),
			logger.Error(err),
		)
	}

	return &InitiationResult{
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
		Reference:        init.Reference,
	}, nil
}

// CancelSubscription retires the subscription and drops the account to the
// free tier. The subscription record is kept, not deleted; any open retry
// episode is closed.
func (s *Service) CancelSubscription(ctx context.Context, userID, reason string) error {
	sub, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if !CanTransition(sub.Status, StatusCancelled) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, StatusCancelled)
	}

	now := s.now().UTC()
	accountDelta := Delta{
		fieldPlan:               string(PlanFree),
		fieldSubscriptionStatus: string(StatusCancelled),
		fieldCancellationDate:   now,
	}
	subscriptionDelta := Delta{
		fieldStatus:       string(StatusCancelled),
		fieldAutoRenew:    false,
		fieldPaymentRetry: nil,
	}
	return s.updater.Apply(ctx, userID, accountDelta, subscriptionDelta, OpSubscriptionCancellation,
		WithEventData(map[string]any{"reason": reason}),
	)
}

// ConvertTrial upgrades a trialing subscription to paid after verifying the
// conversion charge against the gateway.
func (s *Service) ConvertTrial(ctx context.Context, userID, reference string) error {
	sub, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if sub.Status != StatusTrial && sub.Status != StatusTrialIncomplete {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, StatusActive)
	}

	resolved, err := s.catalog.Lookup(sub.PlanID)
	if err != nil {
		return fmt.Errorf("resolve plan %q: %w", sub.PlanID, err)
	}

	txn, err := s.verifyCharge(ctx, reference, resolved.Amount, sub.CustomerEmail)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	periodEnd := resolved.PeriodEnd(now)
	accountDelta := Delta{
		fieldPlan:                  string(PlanPremium),
		fieldSubscriptionStatus:    string(StatusActive),
		fieldSubscriptionReference: txn.Reference,
		fieldSubscriptionStart:     now,
		fieldSubscriptionEnd:       periodEnd,
	}
	subscriptionDelta := Delta{
		fieldStatus:    string(StatusActive),
		fieldReference: txn.Reference,
		fieldAmount:    txn.Amount,
		fieldStartDate: now,
		fieldEndDate:   periodEnd,
	}
	return s.updater.Apply(ctx, userID, accountDelta, subscriptionDelta, OpTrialConversion,
		WithReference(txn.Reference),
	)
}

// RenewSubscription extends the billing window after verifying the renewal
// charge. The new period starts where the current one ends when the renewal
// arrives early, and now when it arrives late.
func (s *Service) RenewSubscription(ctx context.Context, userID, reference string) error {
	sub, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if !CanTransition(sub.Status, StatusActive) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, StatusActive)
	}

	resolved, err := s.catalog.Lookup(sub.PlanID)
	if err != nil {
		return fmt.Errorf("resolve plan %q: %w", sub.PlanID, err)
	}

	txn, err := s.verifyCharge(ctx, reference, resolved.Amount, sub.CustomerEmail)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	periodStart := now
	if sub.EndDate.After(now) {
		periodStart = sub.EndDate
	}
	periodEnd := resolved.PeriodEnd(periodStart)

	accountDelta := Delta{
		fieldSubscriptionStatus:    string(StatusActive),
		fieldPlan:                  string(PlanPremium),
		fieldSubscriptionReference: txn.Reference,
		fieldSubscriptionEnd:       periodEnd,
	}
	subscriptionDelta := Delta{
		fieldStatus:    string(StatusActive),
		fieldReference: txn.Reference,
		fieldAmount:    txn.Amount,
		fieldEndDate:   periodEnd,
	}
	return s.updater.Apply(ctx, userID, accountDelta, subscriptionDelta, OpSubscriptionRenewal,
		WithReference(txn.Reference),
	)
}

// CheckConsistency runs the diagnostic cross-record comparison.
func (s *Service) CheckConsistency(ctx context.Context, userID string) (*ConsistencyReport, error) {
	return s.checker.Check(ctx, userID)
}

// verifyCharge cross-validates a reference and maps the outcome to the
// engine's error taxonomy: unavailable is retryable, rejected is not.
func (s *Service) verifyCharge(ctx context.Context, reference string, amount int64, email string) (*gateway.Transaction, error) {
	check := s.crossval.Validate(ctx, gateway.Expectation{
		Reference: reference,
		Amount:    amount,
		Email:     email,
	})
	switch check.Outcome {
	case gateway.OutcomeUnavailable:
		return nil, errors.Join(ErrVerificationPending, check.Err)
	case gateway.OutcomeRejected:
		return nil, fmt.Errorf("%w: %v", ErrPaymentNotVerified, check.Failures())
	}
	return check.Transaction, nil
}

func (s *Service) recordVerificationFailure(ctx context.Context, userID, reference string, check *gateway.CrossCheck) {
	failures := make([]map[string]any, 0, len(check.Failures()))
	for _, f := range check.Failures() {
		failures = append(failures, map[string]any{
			"check":    f.Name,
			"expected": f.Expected,
			"actual":   f.Actual,
		})
	}
	// Payload field only: a rejected charge was never applied, so a
	// corrected redelivery of the same reference must still process.
	if err := s.trail.Record(ctx, userID, "payment_verification_failed",
		audit.WithData("reference", reference),
		audit.WithData("failures", failures),
	); err != nil {
		s.log.ErrorContext(ctx, "failed to record verification failure",
			logger.UserID(userID),
			logger.Error(err),
		)
	}
}

// resolveUser maps a webhook to a user: the metadata userId stamped during
// initiation wins, falling back to a customer-email lookup against existing
// subscriptions.
func (s *Service) resolveUser(ctx context.Context, event *webhookauth.Event) string {
	if meta, ok := event.Data["metadata"].(map[string]any); ok {
		if id, ok := meta["userId"].(string); ok && id != "" {
			return id
		}
	}

	email := event.CustomerEmail()
	if email == "" {
		return ""
	}
	docs, err := s.store.Find(ctx, CollectionSubscriptions, map[string]any{fieldCustomerEmail: email}, 1)
	if err != nil || len(docs) == 0 {
		return ""
	}
	return docString(docs[0], fieldUserID)
}

func (s *Service) loadSubscription(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	doc, err := s.store.Get(ctx, CollectionSubscriptions, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return subscriptionFromDoc(userID, doc), nil
}

func (s *Service) processed(reason string) *WebhookResult {
	return &WebhookResult{Received: true, Processed: true, Reason: reason, Timestamp: s.now().UTC()}
}

func (s *Service) unprocessed(reason string) *WebhookResult {
	return &WebhookResult{Received: true, Processed: false, Reason: reason, Timestamp: s.now().UTC()}
}

func eventGatewayResponse(event *webhookauth.Event) string {
	if v, ok := event.Data["gateway_response"].(string); ok {
		return v
	}
	if v, ok := event.Data["description"].(string); ok {
		return v
	}
	return ""
}

// resolvePlan picks the catalog plan for a charge: the event's plan code
// first, then the stored subscription's plan for renewals that omit it.
func (s *Service) resolvePlan(event *webhookauth.Event, sub *Subscription) (plan.Plan, bool) {
	if code := event.Plan(); code != "" {
		if resolved, err := s.catalog.Lookup(code); err == nil {
			return resolved, true
		}
		return plan.Plan{}, false
	}
	if sub != nil && sub.PlanID != "" {
		if resolved, err := s.catalog.Lookup(sub.PlanID); err == nil {
			return resolved, true
		}
	}
	return plan.Plan{}, false
}
