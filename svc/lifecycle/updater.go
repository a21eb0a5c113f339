package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/renewkit/renewkit/pkg/audit"
	"github.com/renewkit/renewkit/pkg/docstore"
	"github.com/renewkit/renewkit/pkg/logger"
)

// Delta is a partial document merged into a record.
type Delta = docstore.Document

// Operation tags. Every applied mutation produces exactly one audit entry
// tagged atomic_<tag>; a failed commit produces atomic_<tag>_failed instead.
const (
	OpSubscriptionCreation     = "subscription_creation"
	OpSubscriptionRenewal      = "subscription_renewal"
	OpSubscriptionCancellation = "subscription_cancellation"
	OpSubscriptionNonRenewal   = "subscription_nonrenewal"
	OpTrialConversion          = "trial_conversion"
	OpProviderLink             = "provider_link"
	OpInvoiceUpdate            = "invoice_update"
	OpPaymentFailure           = "payment_failure"
	OpPaymentRetrySuccess      = "payment_retry_success"
	OpPaymentRetryFailed       = "payment_retry_failed"
	OpConsistencyRepair        = "consistency_repair"
)

// Updater is the single permitted write path to Account and Subscription
// records. Every call commits the account merge, the subscription merge,
// and the audit entry as one all-or-nothing batch.
//
// The store cannot make a write conditional on a read inside the batch, so
// concurrent callers for the same user could race between the read that
// builds a delta and the commit. The updater serializes per user with a
// keyed mutex and stamps a version counter into the same batch; cross
// process, conflicting writers are detectable after the fact through the
// version sequence and the consistency checker.
type Updater struct {
	store docstore.Store
	trail *audit.Trail
	cfg   Config
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithUpdaterClock injects a clock for deterministic retry windows in tests.
func WithUpdaterClock(now func() time.Time) UpdaterOption {
	return func(u *Updater) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUpdater builds the atomic dual-record updater.
func NewUpdater(store docstore.Store, trail *audit.Trail, cfg Config, log *slog.Logger, opts ...UpdaterOption) *Updater {
	if store == nil {
		panic("lifecycle: store cannot be nil")
	}
	if trail == nil {
		panic("lifecycle: audit trail cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	u := &Updater{
		store: store,
		trail: trail,
		cfg:   cfg.withDefaults(),
		log:   log,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ApplyOption attaches metadata to one Apply call.
type ApplyOption func(*applyConfig)

type applyConfig struct {
	reference string
	eventData map[string]any
}

// WithReference tags the operation's audit entry with the payment reference
// so the duplicate-reference check can find it later.
func WithReference(reference string) ApplyOption {
	return func(c *applyConfig) {
		c.reference = reference
	}
}

// WithEventData merges extra detail into the operation's audit entry.
func WithEventData(data map[string]any) ApplyOption {
	return func(c *applyConfig) {
		if c.eventData == nil {
			c.eventData = make(map[string]any, len(data))
		}
		for k, v := range data {
			c.eventData[k] = v
		}
	}
}

// Apply upserts both records and appends the audit entry in one batch.
// At least one delta must be non-empty. On commit failure it logs an
// atomic_<tag>_failed audit entry with the error detail and returns the
// error; no partial state is left behind.
func (u *Updater) Apply(ctx context.Context, userID string, accountDelta, subscriptionDelta Delta, opTag string, opts ...ApplyOption) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if len(accountDelta) == 0 && len(subscriptionDelta) == 0 {
		return ErrEmptyDelta
	}

	cfg := &applyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	lock := u.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := u.now().UTC()
	subscriptionDelta = u.applyEmbedded(ctx, userID, opTag, subscriptionDelta, now)

	batch := u.store.Batch()
	if len(accountDelta) > 0 {
		accountDelta[fieldUserID] = userID
		accountDelta[fieldVersion] = u.nextVersion(ctx, CollectionAccounts, userID)
		accountDelta[fieldUpdatedAt] = now
		batch.Merge(CollectionAccounts, userID, accountDelta)
	}
	if len(subscriptionDelta) > 0 {
		subscriptionDelta[fieldUserID] = userID
		subscriptionDelta[fieldVersion] = u.nextVersion(ctx, CollectionSubscriptions, userID)
		subscriptionDelta[fieldUpdatedAt] = now
		batch.Merge(CollectionSubscriptions, userID, subscriptionDelta)
	}

	entryOpts := []audit.EntryOption{
		audit.WithData("accountDelta", auditableDelta(accountDelta)),
		audit.WithData("subscriptionDelta", auditableDelta(subscriptionDelta)),
	}
	if cfg.reference != "" {
		entryOpts = append(entryOpts, audit.WithReference(cfg.reference))
	}
	if len(cfg.eventData) > 0 {
		entryOpts = append(entryOpts, audit.WithDataMap(cfg.eventData))
	}
	if err := u.trail.Enlist(batch, userID, "atomic_"+opTag, entryOpts...); err != nil {
		return errors.Join(ErrUpdateFailed, err)
	}

	if err := batch.Commit(ctx); err != nil {
		u.log.ErrorContext(ctx, "atomic update failed",
			logger.UserID(userID),
			logger.Operation(opTag),
			logger.Error(err),
		)
		if auditErr := u.trail.Record(ctx, userID, "atomic_"+opTag+"_failed",
			audit.WithData("error", err.Error()),
		); auditErr != nil {
			u.log.ErrorContext(ctx, "failed to record failure audit entry",
				logger.UserID(userID),
				logger.Error(auditErr),
			)
		}
		return errors.Join(ErrUpdateFailed, err)
	}
	return nil
}

// applyEmbedded injects the operation-specific retry bookkeeping into the
// subscription delta before the batch is built.
func (u *Updater) applyEmbedded(ctx context.Context, userID, opTag string, delta Delta, now time.Time) Delta {
	switch opTag {
	case OpPaymentFailure:
		if delta == nil {
			delta = Delta{}
		}
		delta[fieldPaymentRetry] = paymentRetryDoc(&PaymentRetry{
			RetryAttempts:  0,
			MaxRetries:     u.cfg.MaxRetries,
			NextRetryDate:  now.Add(u.cfg.RetryInterval),
			GracePeriodEnd: now.Add(u.cfg.GracePeriod),
			Status:         RetryScheduled,
		})

	case OpPaymentRetrySuccess:
		if delta == nil {
			delta = Delta{}
		}
		delta[fieldPaymentRetry] = nil
		delta[fieldStatus] = string(StatusActive)

	case OpPaymentRetryFailed:
		// The scheduler supplies the next paymentRetry sub-document; the
		// updater owns the advance-or-flip rule so a caller can never leave
		// an exhausted episode in retry_scheduled.
		pr, ok := delta[fieldPaymentRetry].(map[string]any)
		if !ok {
			break
		}
		attempts := docInt(pr, fieldRetryAttempts)
		maxRetries := docInt(pr, fieldMaxRetries)
		if maxRetries <= 0 {
			maxRetries = int64(u.cfg.MaxRetries)
			pr[fieldMaxRetries] = int(maxRetries)
		}
		if attempts >= maxRetries {
			pr[fieldRetryStatus] = string(RetryGracePeriod)
		} else {
			pr[fieldRetryStatus] = string(RetryScheduled)
			if docTime(pr, fieldNextRetryDate).IsZero() {
				pr[fieldNextRetryDate] = now.Add(u.cfg.RetryInterval)
			}
		}
	}
	return delta
}

// nextVersion reads the current record version under the user lock. Absent
// records start at version 1.
func (u *Updater) nextVersion(ctx context.Context, collection, userID string) int64 {
	doc, err := u.store.Get(ctx, collection, userID)
	if err != nil {
		return 1
	}
	return docInt(doc, fieldVersion) + 1
}

func (u *Updater) userLock(userID string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()

	lock, ok := u.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		u.locks[userID] = lock
	}
	return lock
}

// auditableDelta strips bulky raw payloads from the delta copy stored in
// the audit entry; the subscription record keeps the full payload.
func auditableDelta(delta Delta) map[string]any {
	if len(delta) == 0 {
		return nil
	}
	out := make(map[string]any, len(delta))
	for k, v := range delta {
		if k == fieldRawPayload {
			continue
		}
		out[k] = v
	}
	return out
}
