package webhookauth

import (
	"encoding/json"
	"strings"
)

// EventName identifies a gateway event type. Only the enumerated set below
// is accepted; anything else fails shape validation.
type EventName string

const (
	EventChargeSuccess        EventName = "charge.success"
	EventSubscriptionCreate   EventName = "subscription.create"
	EventSubscriptionDisable  EventName = "subscription.disable"
	EventSubscriptionNotRenew EventName = "subscription.not_renew"
	EventInvoiceUpdate        EventName = "invoice.update"
	EventInvoicePaymentFailed EventName = "invoice.payment_failed"
)

var knownEvents = map[EventName]struct{}{
	EventChargeSuccess:        {},
	EventSubscriptionCreate:   {},
	EventSubscriptionDisable:  {},
	EventSubscriptionNotRenew: {},
	EventInvoiceUpdate:        {},
	EventInvoicePaymentFailed: {},
}

// Event is the parsed, shape-validated webhook payload.
type Event struct {
	Name EventName
	Data map[string]any
}

// Reference returns data.reference, empty when absent.
func (e *Event) Reference() string {
	ref, _ := e.Data["reference"].(string)
	return ref
}

// CustomerEmail returns data.customer.email, empty when absent.
func (e *Event) CustomerEmail() string {
	customer, _ := e.Data["customer"].(map[string]any)
	email, _ := customer["email"].(string)
	return email
}

// Amount returns data.amount in minor units, 0 when absent.
// JSON numbers arrive as float64; gateway amounts are integral minor units.
func (e *Event) Amount() int64 {
	amount, _ := e.Data["amount"].(float64)
	return int64(amount)
}

// SubscriptionCode returns the gateway subscription correlation code.
// Invoice events nest it under data.subscription.
func (e *Event) SubscriptionCode() string {
	if code, ok := e.Data["subscription_code"].(string); ok {
		return code
	}
	sub, _ := e.Data["subscription"].(map[string]any)
	code, _ := sub["subscription_code"].(string)
	return code
}

// Plan returns the gateway plan code, checked in both flat and nested shapes.
func (e *Event) Plan() string {
	if code, ok := e.Data["plan"].(string); ok {
		return code
	}
	planObj, _ := e.Data["plan"].(map[string]any)
	code, _ := planObj["plan_code"].(string)
	return code
}

// parseEvent validates the payload shape: a top-level event name from the
// closed set, a data object, and the event-specific required sub-fields.
func parseEvent(body []byte) (*Event, ReasonCode) {
	var raw struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ReasonMalformedPayload
	}
	if raw.Event == "" {
		return nil, ReasonMalformedPayload
	}

	name := EventName(strings.ToLower(strings.TrimSpace(raw.Event)))
	if _, ok := knownEvents[name]; !ok {
		return nil, ReasonUnknownEvent
	}

	var data map[string]any
	if err := json.Unmarshal(raw.Data, &data); err != nil || data == nil {
		return nil, ReasonMalformedPayload
	}

	event := &Event{Name: name, Data: data}
	if reason := checkRequiredFields(event); reason != "" {
		// Event is returned alongside the reason so the caller can name
		// the missing fields in its security log.
		return event, reason
	}
	return event, ""
}

// checkRequiredFields enforces the per-event required sub-fields.
func checkRequiredFields(e *Event) ReasonCode {
	switch e.Name {
	case EventChargeSuccess:
		if e.Reference() == "" || e.CustomerEmail() == "" {
			return ReasonMissingField
		}
	case EventSubscriptionCreate:
		if e.SubscriptionCode() == "" || e.CustomerEmail() == "" {
			return ReasonMissingField
		}
	case EventSubscriptionDisable, EventSubscriptionNotRenew:
		if e.SubscriptionCode() == "" {
			return ReasonMissingField
		}
	case EventInvoicePaymentFailed:
		if e.SubscriptionCode() == "" || e.CustomerEmail() == "" {
			return ReasonMissingField
		}
	}
	return ""
}

// requiredFieldHint names the fields an event must carry, for security logs.
func requiredFieldHint(name EventName) string {
	switch name {
	case EventChargeSuccess:
		return "reference, customer.email"
	case EventSubscriptionCreate, EventInvoicePaymentFailed:
		return "subscription_code, customer.email"
	case EventSubscriptionDisable, EventSubscriptionNotRenew:
		return "subscription_code"
	default:
		return ""
	}
}
