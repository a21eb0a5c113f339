package lifecycle_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/renewkit/renewkit/pkg/audit"
	"github.com/renewkit/renewkit/pkg/docstore"
	"github.com/renewkit/renewkit/pkg/gateway"
	"github.com/renewkit/renewkit/pkg/plan"
	"github.com/renewkit/renewkit/pkg/webhookauth"
	"github.com/renewkit/renewkit/svc/lifecycle"
)

const (
	testSecret = "whsec_test"
	testUserID = "user_1"
	testEmail  = "user@example.com"
	testPlanID = "MONTHLY_PLAN"
	testAmount = int64(15999)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// stubVerifier serves the cross-validator a mutable canned answer.
type stubVerifier struct {
	mu  sync.Mutex
	txn *gateway.Transaction
	err error
}

func (s *stubVerifier) VerifyTransaction(_ context.Context, _ string) (*gateway.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	txn := *s.txn
	return &txn, nil
}

func (s *stubVerifier) set(txn *gateway.Transaction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txn, s.err = txn, err
}

// stubCharger fakes authorization re-charges for the retry scheduler.
type stubCharger struct {
	mu     sync.Mutex
	result *gateway.ChargeResult
	err    error
	calls  int
}

func (s *stubCharger) ChargeAuthorization(_ context.Context, _, _ string, _ int64, _ string) (*gateway.ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	result := *s.result
	return &result, nil
}

type stubInitializer struct {
	mu   sync.Mutex
	last gateway.InitializationRequest
	init *gateway.Initialization
	err  error
}

func (s *stubInitializer) InitializeTransaction(_ context.Context, req gateway.InitializationRequest) (*gateway.Initialization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.init, nil
}

// engine bundles a fully wired Service over the in-memory store so tests
// can drive webhooks and inspect resulting state.
type engine struct {
	store    *docstore.MemoryStore
	trail    *audit.Trail
	reader   *audit.Reader
	service  *lifecycle.Service
	verifier *stubVerifier
	charger  *stubCharger
	initier  *stubInitializer
	clock    *fakeClock
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	clock := newFakeClock()
	store := docstore.NewMemoryStore()
	trail := audit.NewTrail(store, audit.WithClock(clock.Now))
	reader := audit.NewReader(store)
	log := discardLogger()

	verifier := &stubVerifier{}
	verifier.set(verifiedTransaction(clock.Now()), nil)

	charger := &stubCharger{}
	initier := &stubInitializer{init: &gateway.Initialization{
		AuthorizationURL: "https://checkout.test/session",
		AccessCode:       "ac_test",
		Reference:        "ref_init",
	}}

	e := &engine{
		store:    store,
		trail:    trail,
		reader:   reader,
		verifier: verifier,
		charger:  charger,
		initier:  initier,
		clock:    clock,
	}

	service, err := lifecycle.NewService(lifecycle.Deps{
		Store:          store,
		Trail:          trail,
		Reader:         reader,
		Webhooks:       newWebhookValidator(t),
		CrossValidator: newCrossValidator(e),
		Initializer:    initier,
		Charger:        charger,
		Catalog:        newCatalog(t),
		Config: lifecycle.Config{
			MaxRetries:    3,
			RetryInterval: 24 * time.Hour,
			GracePeriod:   7 * 24 * time.Hour,
		},
		Logger: log,
	}, lifecycle.WithServiceClock(clock.Now))
	require.NoError(t, err)

	e.service = service
	return e
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newWebhookValidator(t *testing.T) *webhookauth.Validator {
	t.Helper()
	webhooks, err := webhookauth.New(webhookauth.Config{
		Secret:      testSecret,
		Environment: "development",
	}, discardLogger())
	require.NoError(t, err)
	return webhooks
}

// newCrossValidator binds a cross-validator to the engine's stub verifier
// and clock.
func newCrossValidator(e *engine) *gateway.CrossValidator {
	return gateway.NewCrossValidator(e.verifier, gateway.CrossValidatorConfig{
		Currency:        "NGN",
		AmountTolerance: 1,
		FreshnessWindow: time.Hour,
	}, gateway.WithClock(e.clock.Now))
}

func newCatalog(t *testing.T) *plan.Catalog {
	t.Helper()
	catalog, err := plan.NewCatalog(context.Background(), plan.StaticSource{
		{ID: testPlanID, Name: "Monthly", Amount: testAmount, Currency: "NGN", Interval: plan.IntervalMonthly},
		{ID: "ANNUAL_PLAN", Name: "Annual", Amount: 149999, Currency: "NGN", Interval: plan.IntervalAnnual},
	})
	require.NoError(t, err)
	return catalog
}

func verifiedTransaction(now time.Time) *gateway.Transaction {
	return &gateway.Transaction{
		Reference:         "ref_1",
		Status:            "success",
		Amount:            testAmount,
		Currency:          "NGN",
		CustomerEmail:     testEmail,
		GatewayResponse:   "Approved",
		AuthorizationCode: "AUTH_1",
		CreatedAt:         now.Add(-time.Minute),
	}
}

func signedEvent(t *testing.T, body []byte) webhookauth.RawEvent {
	t.Helper()
	return webhookauth.RawEvent{
		Body:      body,
		Signature: webhookauth.ComputeSignature(testSecret, body),
		SourceIP:  "127.0.0.1",
		UserAgent: "gateway-test",
	}
}

func chargeSuccessBody(t *testing.T, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": "charge.success",
		"data": map[string]any{
			"reference": reference,
			"amount":    testAmount,
			"plan":      testPlanID,
			"customer":  map[string]any{"email": testEmail},
			"metadata":  map[string]any{"userId": testUserID},
		},
	})
	require.NoError(t, err)
	return body
}

func invoiceFailedBody(t *testing.T, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": "invoice.payment_failed",
		"data": map[string]any{
			"reference":         reference,
			"subscription_code": "SUB_1",
			"customer":          map[string]any{"email": testEmail},
			"gateway_response":  "Insufficient funds",
			"metadata":          map[string]any{"userId": testUserID},
		},
	})
	require.NoError(t, err)
	return body
}

func disableBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": "subscription.disable",
		"data": map[string]any{
			"subscription_code": "SUB_1",
			"metadata":          map[string]any{"userId": testUserID},
		},
	})
	require.NoError(t, err)
	return body
}

// seedActive writes an active account/subscription pair directly into the
// store, bypassing the engine, as fixture state.
func seedActive(t *testing.T, e *engine) {
	t.Helper()
	ctx := context.Background()
	now := e.clock.Now()

	require.NoError(t, e.store.Set(ctx, "accounts", testUserID, docstore.Document{
		"userId":                testUserID,
		"plan":                  "premium",
		"subscriptionStatus":    "active",
		"subscriptionPlan":      testPlanID,
		"subscriptionReference": "ref_prev",
		"subscriptionStart":     now.AddDate(0, -1, 0),
		"subscriptionEnd":       now.AddDate(0, 0, 14),
		"version":               int64(1),
	}))
	require.NoError(t, e.store.Set(ctx, "subscriptions", testUserID, docstore.Document{
		"userId":            testUserID,
		"planId":            testPlanID,
		"status":            "active",
		"reference":         "ref_prev",
		"amount":            testAmount,
		"currency":          "NGN",
		"startDate":         now.AddDate(0, -1, 0),
		"endDate":           now.AddDate(0, 0, 14),
		"customerEmail":     testEmail,
		"authorizationCode": "AUTH_1",
		"autoRenew":         true,
		"version":           int64(1),
	}))
}

func getDoc(t *testing.T, e *engine, collection string) docstore.Document {
	t.Helper()
	doc, err := e.store.Get(context.Background(), collection, testUserID)
	require.NoError(t, err)
	return doc
}

func auditEntries(t *testing.T, e *engine, eventType string) []audit.Entry {
	t.Helper()
	entries, err := e.reader.Find(context.Background(), audit.Criteria{
		UserID:    testUserID,
		EventType: eventType,
	})
	require.NoError(t, err)
	return entries
}
