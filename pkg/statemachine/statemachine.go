package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// State is a named state in a finite state machine.
type State interface {
	Name() string
}

// Event is a named trigger for a state transition.
type Event interface {
	Name() string
}

// Action executes side effects during a transition. Returning an error
// aborts the transition and leaves the machine in its current state.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard decides whether a transition is allowed given runtime data.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition is a state change triggered by an event, with optional guards
// and actions.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // all must pass
	Actions []Action // run in order before the state change
}

// StringState is a string-based State for simple cases.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is a string-based Event for simple cases.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }

// Machine is a thread-safe in-memory finite state machine. Transitions are
// indexed [fromState][event] for O(1) lookup; multiple transitions may share
// a from/event pair, in which case the first one whose guards all pass wins.
type Machine struct {
	initial     State
	current     State
	transitions map[string]map[string][]Transition
	mu          sync.RWMutex
}

func newMachine(initial State) *Machine {
	return &Machine{
		initial:     initial,
		current:     initial,
		transitions: make(map[string]map[string][]Transition),
	}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AddTransition registers a transition in the closed table.
func (m *Machine) AddTransition(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transitions[from.Name()]; !ok {
		m.transitions[from.Name()] = make(map[string][]Transition)
	}
	m.transitions[from.Name()][event.Name()] = append(m.transitions[from.Name()][event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

// Fire applies an event. Transitions not present in the table fail with
// ErrNoTransitionAvailable; transitions vetoed by every guard fail with
// ErrTransitionRejected.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.transitions[m.current.Name()][event.Name()]
	if len(candidates) == 0 {
		return NewErrNoTransitionAvailable(m.current.Name(), event.Name())
	}

	transition := m.pick(ctx, candidates, event, data)
	if transition == nil {
		return NewErrTransitionRejected(m.current.Name(), event.Name())
	}

	for _, action := range transition.Actions {
		if action != nil {
			if err := action(ctx, m.current, transition.To, event, data); err != nil {
				return fmt.Errorf("action failed: %w", err)
			}
		}
	}

	m.current = transition.To
	return nil
}

// CanFire reports whether the event would be accepted from the current state.
func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := m.transitions[m.current.Name()][event.Name()]
	return m.pick(ctx, candidates, event, data) != nil
}

// pick returns the first candidate whose guards all pass. Callers hold mu.
func (m *Machine) pick(ctx context.Context, candidates []Transition, event Event, data any) *Transition {
	for i, t := range candidates {
		passed := true
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, m.current, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return &candidates[i]
		}
	}
	return nil
}
