package webhookauth

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
)

// ReasonCode explains why an event failed authenticity validation.
type ReasonCode string

const (
	ReasonMissingSignature  ReasonCode = "missing_signature"
	ReasonInvalidSignature  ReasonCode = "invalid_signature"
	ReasonSourceNotAllowed  ReasonCode = "source_not_allowed"
	ReasonMalformedPayload  ReasonCode = "malformed_payload"
	ReasonUnknownEvent      ReasonCode = "unknown_event"
	ReasonMissingField      ReasonCode = "missing_field"
	ReasonSuspiciousContent ReasonCode = "suspicious_content"
)

// Config holds the validator's environment-provided parameters.
type Config struct {
	// Secret is the shared webhook secret the gateway signs payloads with.
	Secret string `env:"GATEWAY_WEBHOOK_SECRET,required"`
	// AllowedSources lists the gateway's published egress IPs or CIDRs.
	AllowedSources []string `env:"GATEWAY_ALLOWED_SOURCES" envSeparator:","`
	// Environment controls the loopback/private source bypass. The bypass
	// is hard-disabled when this is "production".
	Environment string `env:"APP_ENV" envDefault:"production"`
}

// RawEvent is an inbound webhook exactly as the transport received it.
// Body must be the raw request bytes; re-encoded JSON will not verify.
type RawEvent struct {
	Body      []byte
	Signature string
	SourceIP  string
	UserAgent string
}

// Result is the validation outcome. Event is populated only when Valid.
type Result struct {
	Valid  bool
	Reason ReasonCode
	Event  *Event
}

// Validator authenticates inbound gateway webhooks before any business
// logic runs. All four checks must pass: signature, source address, payload
// shape, and content scan. Expected failures are reported in the Result,
// never as errors; the caller acknowledges receipt regardless so the sender
// does not hot-retry.
type Validator struct {
	secret      string
	sources     *allowlist
	development bool
	log         *slog.Logger
}

// New builds a Validator from config. Fails on an unparsable allowlist.
func New(cfg Config, log *slog.Logger) (*Validator, error) {
	sources, err := newAllowlist(cfg.AllowedSources)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Validator{
		secret:      cfg.Secret,
		sources:     sources,
		development: !strings.EqualFold(cfg.Environment, "production"),
		log:         log,
	}, nil
}

// Validate runs the four authenticity checks in order, short-circuiting on
// the first failure.
func (v *Validator) Validate(ctx context.Context, raw RawEvent) Result {
	if raw.Signature == "" {
		return v.reject(ctx, raw, ReasonMissingSignature, nil)
	}
	if !verifySignature(v.secret, raw.Body, raw.Signature) {
		return v.reject(ctx, raw, ReasonInvalidSignature, nil)
	}

	if reason := v.checkSource(raw.SourceIP); reason != "" {
		return v.reject(ctx, raw, reason, nil)
	}

	event, reason := parseEvent(raw.Body)
	if reason != "" {
		attrs := []slog.Attr{}
		if reason == ReasonMissingField && event != nil {
			attrs = append(attrs, slog.String("required", requiredFieldHint(event.Name)))
		}
		return v.reject(ctx, raw, reason, attrs)
	}

	if match, found := scanForInjection(event.Data); found {
		return v.reject(ctx, raw, ReasonSuspiciousContent,
			[]slog.Attr{slog.String("matched", truncate(match, 120))})
	}

	return Result{Valid: true, Event: event}
}

func (v *Validator) checkSource(sourceIP string) ReasonCode {
	addr, err := netip.ParseAddr(sourceIP)
	if err != nil {
		return ReasonSourceNotAllowed
	}
	if v.sources.contains(addr) {
		return ""
	}
	// Loopback/tunnel bypass exists for local gateway CLIs and test
	// tunnels. Never active in production.
	if v.development && isDevelopmentAddr(addr) {
		return ""
	}
	return ReasonSourceNotAllowed
}

// reject logs a security event with the request's origin detail and returns
// the invalid result. Callers still acknowledge the webhook externally.
func (v *Validator) reject(ctx context.Context, raw RawEvent, reason ReasonCode, attrs []slog.Attr) Result {
	logAttrs := append([]slog.Attr{
		slog.String("reason", string(reason)),
		slog.String("source_ip", raw.SourceIP),
		slog.String("user_agent", raw.UserAgent),
	}, attrs...)
	v.log.LogAttrs(ctx, slog.LevelWarn, "webhook rejected", logAttrs...)

	return Result{Valid: false, Reason: reason}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
