package lifecycle

import (
	"time"
)

// Collections the engine persists through.
const (
	CollectionAccounts      = "accounts"
	CollectionSubscriptions = "subscriptions"
)

// AccountPlan is the coarse-grained plan tier used for access control.
type AccountPlan string

const (
	PlanFree    AccountPlan = "free"
	PlanPremium AccountPlan = "premium"
)

// SubscriptionStatus is the closed set of lifecycle states shared by the
// account summary and the subscription detail record.
type SubscriptionStatus string

const (
	StatusActive          SubscriptionStatus = "active"
	StatusTrial           SubscriptionStatus = "trial"
	StatusTrialIncomplete SubscriptionStatus = "trial_incomplete"
	StatusCancelled       SubscriptionStatus = "cancelled"
	StatusExpired         SubscriptionStatus = "expired"
	StatusInactive        SubscriptionStatus = "inactive"
	StatusPaymentFailed   SubscriptionStatus = "payment_failed"
)

// allowedTransitions is the closed transition table. A status absent from a
// source's set cannot be reached from it; CanTransition enforces this before
// any delta is built.
var allowedTransitions = map[SubscriptionStatus]map[SubscriptionStatus]struct{}{
	StatusInactive:        {StatusTrial: {}, StatusTrialIncomplete: {}, StatusActive: {}},
	StatusTrial:           {StatusActive: {}, StatusCancelled: {}, StatusExpired: {}, StatusPaymentFailed: {}},
	StatusTrialIncomplete: {StatusTrial: {}, StatusActive: {}, StatusCancelled: {}, StatusExpired: {}},
	StatusActive:          {StatusActive: {}, StatusCancelled: {}, StatusExpired: {}, StatusPaymentFailed: {}},
	StatusPaymentFailed:   {StatusActive: {}, StatusCancelled: {}, StatusExpired: {}},
	StatusExpired:         {StatusActive: {}, StatusTrial: {}},
	StatusCancelled:       {StatusActive: {}, StatusTrial: {}},
}

// CanTransition reports whether the status change is in the allowed table.
// An empty from means the record is being created; any status is reachable.
func CanTransition(from, to SubscriptionStatus) bool {
	if from == "" {
		return true
	}
	_, ok := allowedTransitions[from][to]
	return ok
}

// RetryStatus is the payment-retry sub-state owned by the scheduler.
type RetryStatus string

const (
	RetryScheduled   RetryStatus = "retry_scheduled"
	RetryGracePeriod RetryStatus = "grace_period"
)

// Account is the coarse-grained per-user summary read by access-control
// logic. Written exclusively through the Updater.
type Account struct {
	UserID                 string
	Plan                   AccountPlan
	SubscriptionStatus     SubscriptionStatus
	SubscriptionPlan       string
	SubscriptionReference  string
	CustomerCode           string
	SubscriptionCode       string
	ExternalSubscriptionID string
	SubscriptionStart      time.Time
	SubscriptionEnd        time.Time
	TrialStart             time.Time
	TrialEnd               time.Time
	CancellationDate       time.Time
	FailedPayments         int
	Version                int64
	UpdatedAt              time.Time
}

// Subscription is the full per-user billing detail record. Written
// exclusively through the Updater; the PaymentRetry sub-object is owned by
// the retry scheduler.
type Subscription struct {
	UserID            string
	PlanID            string
	Status            SubscriptionStatus
	Reference         string
	Amount            int64
	Currency          string
	StartDate         time.Time
	EndDate           time.Time
	CustomerEmail     string
	CustomerCode      string
	SubscriptionCode  string
	AuthorizationCode string
	AutoRenew         bool
	RawPayload        map[string]any
	PaymentRetry      *PaymentRetry
	Version           int64
	UpdatedAt         time.Time
}

// PaymentRetry tracks a failure episode: bounded retry attempts followed by
// a time-boxed grace period. Cleared to null the moment a payment succeeds.
type PaymentRetry struct {
	RetryAttempts  int
	MaxRetries     int
	NextRetryDate  time.Time
	GracePeriodEnd time.Time
	Status         RetryStatus
	RetryHistory   []RetryAttempt
}

// RetryAttempt is one recorded charge attempt within a failure episode.
type RetryAttempt struct {
	Attempt      int
	AttemptedAt  time.Time
	Reference    string
	GatewayError string
}

// Account/Subscription document field names. Deltas are plain documents, so
// the names live in one place.
const (
	fieldPlan                  = "plan"
	fieldSubscriptionStatus    = "subscriptionStatus"
	fieldSubscriptionPlan      = "subscriptionPlan"
	fieldSubscriptionReference = "subscriptionReference"
	fieldSubscriptionStart     = "subscriptionStart"
	fieldSubscriptionEnd       = "subscriptionEnd"
	fieldTrialStart            = "trialStart"
	fieldTrialEnd              = "trialEnd"
	fieldCancellationDate      = "cancellationDate"
	fieldFailedPayments        = "failedPayments"
	fieldCustomerCode          = "customerCode"
	fieldSubscriptionCode      = "subscriptionCode"
	fieldExternalSubID         = "externalSubscriptionId"

	fieldStatus        = "status"
	fieldPlanID        = "planId"
	fieldReference     = "reference"
	fieldAmount        = "amount"
	fieldCurrency      = "currency"
	fieldStartDate     = "startDate"
	fieldEndDate       = "endDate"
	fieldCustomerEmail = "customerEmail"
	fieldAuthCode      = "authorizationCode"
	fieldAutoRenew     = "autoRenew"
	fieldRawPayload    = "rawPayload"
	fieldPaymentRetry  = "paymentRetry"

	fieldRetryAttempts  = "retryAttempts"
	fieldMaxRetries     = "maxRetries"
	fieldNextRetryDate  = "nextRetryDate"
	fieldGracePeriodEnd = "gracePeriodEnd"
	fieldRetryStatus    = "status"
	fieldRetryHistory   = "retryHistory"

	fieldUserID    = "userId"
	fieldVersion   = "version"
	fieldUpdatedAt = "updatedAt"
)

func accountFromDoc(userID string, doc map[string]any) *Account {
	a := &Account{
		UserID:                 userID,
		Plan:                   AccountPlan(docString(doc, fieldPlan)),
		SubscriptionStatus:     SubscriptionStatus(docString(doc, fieldSubscriptionStatus)),
		SubscriptionPlan:       docString(doc, fieldSubscriptionPlan),
		SubscriptionReference:  docString(doc, fieldSubscriptionReference),
		CustomerCode:           docString(doc, fieldCustomerCode),
		SubscriptionCode:       docString(doc, fieldSubscriptionCode),
		ExternalSubscriptionID: docString(doc, fieldExternalSubID),
		SubscriptionStart:      docTime(doc, fieldSubscriptionStart),
		SubscriptionEnd:        docTime(doc, fieldSubscriptionEnd),
		TrialStart:             docTime(doc, fieldTrialStart),
		TrialEnd:               docTime(doc, fieldTrialEnd),
		CancellationDate:       docTime(doc, fieldCancellationDate),
		FailedPayments:         int(docInt(doc, fieldFailedPayments)),
		Version:                docInt(doc, fieldVersion),
		UpdatedAt:              docTime(doc, fieldUpdatedAt),
	}
	return a
}

func subscriptionFromDoc(userID string, doc map[string]any) *Subscription {
	s := &Subscription{
		UserID:            userID,
		PlanID:            docString(doc, fieldPlanID),
		Status:            SubscriptionStatus(docString(doc, fieldStatus)),
		Reference:         docString(doc, fieldReference),
		Amount:            docInt(doc, fieldAmount),
		Currency:          docString(doc, fieldCurrency),
		StartDate:         docTime(doc, fieldStartDate),
		EndDate:           docTime(doc, fieldEndDate),
		CustomerEmail:     docString(doc, fieldCustomerEmail),
		CustomerCode:      docString(doc, fieldCustomerCode),
		SubscriptionCode:  docString(doc, fieldSubscriptionCode),
		AuthorizationCode: docString(doc, fieldAuthCode),
		Version:           docInt(doc, fieldVersion),
		UpdatedAt:         docTime(doc, fieldUpdatedAt),
	}
	if v, ok := doc[fieldAutoRenew].(bool); ok {
		s.AutoRenew = v
	}
	if raw, ok := doc[fieldRawPayload].(map[string]any); ok {
		s.RawPayload = raw
	}
	if pr, ok := doc[fieldPaymentRetry].(map[string]any); ok {
		s.PaymentRetry = paymentRetryFromDoc(pr)
	}
	return s
}

func paymentRetryFromDoc(doc map[string]any) *PaymentRetry {
	pr := &PaymentRetry{
		RetryAttempts:  int(docInt(doc, fieldRetryAttempts)),
		MaxRetries:     int(docInt(doc, fieldMaxRetries)),
		NextRetryDate:  docTime(doc, fieldNextRetryDate),
		GracePeriodEnd: docTime(doc, fieldGracePeriodEnd),
		Status:         RetryStatus(docString(doc, fieldRetryStatus)),
	}
	if history, ok := doc[fieldRetryHistory].([]any); ok {
		for _, item := range history {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			pr.RetryHistory = append(pr.RetryHistory, RetryAttempt{
				Attempt:      int(docInt(entry, "attempt")),
				AttemptedAt:  docTime(entry, "attemptedAt"),
				Reference:    docString(entry, "reference"),
				GatewayError: docString(entry, "gatewayError"),
			})
		}
	}
	return pr
}

func paymentRetryDoc(pr *PaymentRetry) map[string]any {
	history := make([]any, 0, len(pr.RetryHistory))
	for _, attempt := range pr.RetryHistory {
		history = append(history, map[string]any{
			"attempt":      attempt.Attempt,
			"attemptedAt":  attempt.AttemptedAt,
			"reference":    attempt.Reference,
			"gatewayError": attempt.GatewayError,
		})
	}
	return map[string]any{
		fieldRetryAttempts:  pr.RetryAttempts,
		fieldMaxRetries:     pr.MaxRetries,
		fieldNextRetryDate:  pr.NextRetryDate,
		fieldGracePeriodEnd: pr.GracePeriodEnd,
		fieldRetryStatus:    string(pr.Status),
		fieldRetryHistory:   history,
	}
}

func docString(doc map[string]any, key string) string {
	v, _ := doc[key].(string)
	return v
}

// docInt tolerates the numeric types different store backends hand back:
// int from the memory store, int64/int32 from mongo, float64 from JSON.
func docInt(doc map[string]any, key string) int64 {
	switch v := doc[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func docTime(doc map[string]any, key string) time.Time {
	switch v := doc[key].(type) {
	case time.Time:
		return v
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
