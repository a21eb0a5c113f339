// Package webhookauth authenticates inbound payment-gateway webhooks before
// any business logic runs.
//
// Four checks run in order, all required: an HMAC-SHA512 signature over the
// exact raw body bytes compared in constant time, source-address membership
// in the gateway's published egress allowlist (with a loopback/private
// bypass outside production), payload shape validation against the closed
// event set, and an injection scan over every string field.
//
// Expected failures come back as a Result with a reason code rather than an
// error: the transport acknowledges receipt either way so the gateway does
// not retry a payload we will never accept, while the rejection is logged
// internally with the source IP and user agent.
package webhookauth
