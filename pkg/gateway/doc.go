// Package gateway talks to the payment gateway: verifying transactions by
// reference, initializing hosted payments, and re-charging stored
// authorizations during retries.
//
// The Verifier interface abstracts the verification source so the
// cross-validator can run against the REST client, the Paddle SDK, or a
// stub in tests. CrossValidator compares the gateway's record against the
// inbound claim field by field and reports a structured CrossCheck, never
// a bare boolean, so rejected payments can be investigated from the result
// alone.
package gateway
