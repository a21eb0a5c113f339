package transport

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/renewkit/renewkit/pkg/binder"
	"github.com/renewkit/renewkit/pkg/clientip"
	"github.com/renewkit/renewkit/pkg/logger"
	"github.com/renewkit/renewkit/pkg/ratelimiter"
	"github.com/renewkit/renewkit/pkg/requestid"
	"github.com/renewkit/renewkit/pkg/validator"
	"github.com/renewkit/renewkit/pkg/webhookauth"
	"github.com/renewkit/renewkit/svc/lifecycle"
)

// Engine is the slice of the lifecycle service the HTTP layer drives.
type Engine interface {
	HandleWebhook(ctx context.Context, raw webhookauth.RawEvent) *lifecycle.WebhookResult
	InitiateSubscription(ctx context.Context, identity lifecycle.Identity, req lifecycle.InitiationRequest) (*lifecycle.InitiationResult, error)
	CancelSubscription(ctx context.Context, userID, reason string) error
	ConvertTrial(ctx context.Context, userID, reference string) error
	RenewSubscription(ctx context.Context, userID, reference string) error
	CheckConsistency(ctx context.Context, userID string) (*lifecycle.ConsistencyReport, error)
}

// Retrier executes a due payment retry. *lifecycle.Scheduler satisfies it.
type Retrier interface {
	ExecuteRetry(ctx context.Context, userID string) error
}

// IdentityFunc resolves the authenticated caller of subscriber endpoints.
// The default reads the headers an upstream auth proxy injects.
type IdentityFunc func(r *http.Request) lifecycle.Identity

func headerIdentity(r *http.Request) lifecycle.Identity {
	return lifecycle.Identity{
		ID:    r.Header.Get("X-User-ID"),
		Email: r.Header.Get("X-User-Email"),
	}
}

// Config tunes the HTTP surface.
type Config struct {
	// SignatureHeader carries the gateway's HMAC of the raw webhook body.
	SignatureHeader string `env:"GATEWAY_SIGNATURE_HEADER" envDefault:"x-paystack-signature"`
	// MaxWebhookBody bounds the raw webhook payload size in bytes.
	MaxWebhookBody int64 `env:"WEBHOOK_MAX_BODY" envDefault:"1048576"`
	// InternalToken guards the internal retry and consistency endpoints.
	InternalToken string `env:"INTERNAL_API_TOKEN"`
}

func (c Config) withDefaults() Config {
	if c.SignatureHeader == "" {
		c.SignatureHeader = "x-paystack-signature"
	}
	if c.MaxWebhookBody <= 0 {
		c.MaxWebhookBody = 1 << 20
	}
	return c
}

// Deps wires the router's collaborators.
type Deps struct {
	Engine   Engine
	Retrier  Retrier
	Limiter  ratelimiter.RateLimiter
	Identity IdentityFunc
	Logger   *slog.Logger
	Health   []func(context.Context) error
}

type api struct {
	engine   Engine
	retrier  Retrier
	identity IdentityFunc
	cfg      Config
	log      *slog.Logger
}

// NewRouter assembles the HTTP surface: webhook ingestion, subscriber
// endpoints, and token-guarded internal endpoints.
func NewRouter(deps Deps, cfg Config) http.Handler {
	if deps.Engine == nil {
		panic("transport: engine cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Identity == nil {
		deps.Identity = headerIdentity
	}

	a := &api{
		engine:   deps.Engine,
		retrier:  deps.Retrier,
		identity: deps.Identity,
		cfg:      cfg.withDefaults(),
		log:      deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)
	if deps.Limiter != nil {
		r.Use(ratelimiter.Middleware(deps.Limiter, ratelimiter.Composite(clientIPKey)))
	}

	r.Get("/health", healthHandler(deps.Logger, deps.Health))

	r.Post("/webhooks/payments", a.handleWebhook)

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", a.handleInitiate)
		r.Post("/cancel", a.handleCancel)
		r.Post("/convert", a.handleConvertTrial)
		r.Post("/renew", a.handleRenew)
		r.Get("/consistency", a.handleOwnConsistency)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(a.requireInternalToken)
		r.Post("/retries/{userID}", a.handleRetry)
		r.Get("/consistency/{userID}", a.handleConsistency)
	})

	return r
}

func clientIPKey(r *http.Request) string {
	if ip := clientip.GetIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return clientip.GetIP(r)
}

func healthHandler(log *slog.Logger, checks []func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "health check failed", logger.Error(err))
				writeError(w, http.StatusServiceUnavailable, "unhealthy", "dependency unavailable")
				return
			}
		}
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleWebhook ingests one gateway event. The response is always 200; the
// body reports whether the event mutated anything and why not otherwise.
func (a *api) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.cfg.MaxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook payload exceeds the size limit")
		return
	}

	result := a.engine.HandleWebhook(r.Context(), webhookauth.RawEvent{
		Body:      body,
		Signature: r.Header.Get(a.cfg.SignatureHeader),
		SourceIP:  clientIPKey(r),
		UserAgent: r.UserAgent(),
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.InitiationRequest
	if err := binder.JSON()(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}

	out, err := a.engine.InitiateSubscription(r.Context(), a.identity(r), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusCreated, out)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *api) handleCancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := binder.JSON()(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "user_request"
	}

	if err := a.engine.CancelSubscription(r.Context(), identity.ID, req.Reason); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type referenceRequest struct {
	Reference string `json:"reference"`
}

func (a *api) handleConvertTrial(w http.ResponseWriter, r *http.Request) {
	a.handleVerifiedCharge(w, r, a.engine.ConvertTrial, "converted")
}

func (a *api) handleRenew(w http.ResponseWriter, r *http.Request) {
	a.handleVerifiedCharge(w, r, a.engine.RenewSubscription, "renewed")
}

func (a *api) handleVerifiedCharge(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) error, status string) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req referenceRequest
	if err := binder.JSON()(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	if err := validator.Apply(validator.ValidReference("reference", req.Reference)); err != nil {
		writeValidationError(w, validator.ExtractValidationErrors(err))
		return
	}

	if err := op(r.Context(), identity.ID, req.Reference); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": status})
}

func (a *api) handleOwnConsistency(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	a.respondConsistency(w, r, identity.ID)
}

func (a *api) handleConsistency(w http.ResponseWriter, r *http.Request) {
	a.respondConsistency(w, r, chi.URLParam(r, "userID"))
}

func (a *api) respondConsistency(w http.ResponseWriter, r *http.Request, userID string) {
	report, err := a.engine.CheckConsistency(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (a *api) handleRetry(w http.ResponseWriter, r *http.Request) {
	if a.retrier == nil {
		writeError(w, http.StatusNotImplemented, "retries_disabled", "no retry executor configured")
		return
	}
	if err := a.retrier.ExecuteRetry(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "retried"})
}

func (a *api) requireIdentity(w http.ResponseWriter, r *http.Request) (lifecycle.Identity, bool) {
	identity := a.identity(r)
	if identity.ID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is required")
		return lifecycle.Identity{}, false
	}
	return identity, true
}

// requireInternalToken guards operator endpoints with a constant-time shared
// token comparison.
func (a *api) requireInternalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.InternalToken == "" {
			writeError(w, http.StatusForbidden, "forbidden", "internal endpoints are disabled")
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.InternalToken)) != 1 {
			writeError(w, http.StatusForbidden, "forbidden", "invalid internal token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
