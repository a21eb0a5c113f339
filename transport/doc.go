// Package transport exposes the subscription lifecycle engine over HTTP.
//
// The webhook endpoint always acknowledges with 200 so the gateway does not
// hot-retry; the internal processing outcome travels in the response body.
// Subscriber-facing endpoints return a JSON envelope with either a data
// payload or a structured error naming the offending fields.
package transport
