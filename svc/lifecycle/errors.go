package lifecycle

import "errors"

var (
	// ErrEmptyDelta is returned when Apply is called without any change.
	ErrEmptyDelta = errors.New("at least one of account or subscription delta must be non-empty")

	// ErrMissingUserID is returned when an operation lacks the record key.
	ErrMissingUserID = errors.New("user ID is required")

	// ErrUpdateFailed wraps store failures from the atomic updater.
	ErrUpdateFailed = errors.New("atomic update failed")

	// ErrSubscriptionNotFound means no subscription record exists for the user.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrAccountNotFound means no account record exists for the user.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidTransition means the requested status change is not in the
	// allowed transition table.
	ErrInvalidTransition = errors.New("subscription status transition not allowed")

	// ErrNoRetryScheduled means a retry was requested but the subscription
	// has no pending payment-retry state.
	ErrNoRetryScheduled = errors.New("no payment retry scheduled")

	// ErrRetryNotDue means the next retry date is still in the future.
	ErrRetryNotDue = errors.New("payment retry not due yet")

	// ErrPaymentNotVerified means the gateway's record contradicts the
	// inbound claim; flagged for manual review, never retried automatically.
	ErrPaymentNotVerified = errors.New("payment could not be verified against the gateway")

	// ErrVerificationPending means the gateway was unreachable; the outcome
	// is unknown and the operation is safe to retry.
	ErrVerificationPending = errors.New("payment verification unavailable, retry later")
)
