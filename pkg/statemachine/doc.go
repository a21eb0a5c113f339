// Package statemachine implements a small finite state machine used to
// enforce closed transition tables, such as the payment-retry lifecycle
// (none -> retry_scheduled -> grace_period -> cancelled/active).
//
// States and events are minimal interfaces; StringState and StringEvent
// cover the common case. Guards veto transitions based on runtime data
// (for example "attempts remaining"), and actions run side effects before
// the state change. A transition absent from the table fails with
// ErrNoTransitionAvailable, which callers can distinguish from a guard
// veto via IsNoTransitionAvailableError and IsTransitionRejectedError.
//
//	const (
//	    Scheduled = statemachine.StringState("retry_scheduled")
//	    Grace     = statemachine.StringState("grace_period")
//	    Exhausted = statemachine.StringEvent("retries_exhausted")
//	)
//
//	m := statemachine.MustNew(Scheduled,
//	    statemachine.WithTransition(Scheduled, Grace, Exhausted),
//	)
//	_ = m.Fire(ctx, Exhausted, nil)
//
// Machine is safe for concurrent use; Fire serializes behind a mutex while
// Current and CanFire take a read lock.
package statemachine
