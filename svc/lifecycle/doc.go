// Package lifecycle is the subscription lifecycle and payment
// reconciliation engine: webhook-driven creation, trial conversion,
// renewal, payment-failure retries with a grace period, and cancellation,
// keeping the per-user Account summary and Subscription detail record
// consistent with an append-only audit trail.
//
// Every record write flows through the Updater, which commits the account
// merge, the subscription merge, and the audit entry as one all-or-nothing
// batch. Inbound webhooks pass the authenticity validator and the payment
// cross-validator before any state changes; failures hand over to the
// retry Scheduler. The Checker reports cross-record divergence without
// mutating anything.
package lifecycle
