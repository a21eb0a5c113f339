// Package binder provides type-safe binding of HTTP request bodies to Go structs.
//
// The JSON binder enforces a strict contract on incoming payloads: the
// Content-Type must be application/json, unknown fields are rejected, bodies
// are capped at DefaultMaxJSONSize, and trailing data after the JSON document
// is an error. Decoded string fields are sanitized (control characters removed,
// whitespace trimmed) before the struct is handed to the caller.
//
// # Usage
//
//	type startSubscriptionRequest struct {
//	    PlanID string `json:"planId"`
//	    Amount int64  `json:"amount"`
//	}
//
//	bind := binder.JSON()
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req startSubscriptionRequest
//	    if err := bind(r, &req); err != nil {
//	        // errors.Is(err, binder.ErrFailedToParseJSON) et al.
//	    }
//	}
//
// # Error Handling
//
// All errors wrap one of the package sentinels so callers can map them to
// HTTP status codes:
//
//   - ErrMissingContentType: no Content-Type header on the request
//   - ErrUnsupportedMediaType: Content-Type is not application/json
//   - ErrFailedToParseJSON: malformed, oversized, or trailing-data payloads
package binder
