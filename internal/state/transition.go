// Package state provides the generic state container the application stores
// are built on.
//
// A Container holds a single value of its state type. Every change is a named
// action applied atomically; after each change the container notifies its
// observers and subscribers in transition order and, when a Persister is
// configured, saves a snapshot of the new state.
package state

import (
	"context"
	"time"
)

// Phase is the lifecycle phase of an asynchronous operation.
type Phase string

// Operation phases. Synchronous actions have PhaseNone.
const (
	PhaseNone      Phase = ""
	PhasePending   Phase = "pending"
	PhaseFulfilled Phase = "fulfilled"
	PhaseRejected  Phase = "rejected"
	PhaseHydrated  Phase = "hydrated"
)

// Action describes a transition.
type Action struct {
	// Name is the trace name, e.g. "increment" or "fetchUsers/pending".
	Name string
	// Op is the operation an async phase belongs to. Empty for plain actions.
	Op    string
	Phase Phase
	// Elapsed is the time since the pending phase, set on resolution.
	Elapsed time.Duration
	// Err is the recorded failure message of a rejected phase.
	Err string
}

// Named returns a plain synchronous action.
func Named(name string) Action {
	return Action{Name: name}
}

// Lifecycle returns the action for one phase of an async operation.
func Lifecycle(op string, phase Phase) Action {
	return Action{
		Name:  op + "/" + string(phase),
		Op:    op,
		Phase: phase,
	}
}

// Transition is one applied action together with the resulting state.
type Transition struct {
	Store  string
	Action Action
	Seq    uint64
	At     time.Time
	State  any
}

// Observer is notified of every transition of the containers it is attached
// to. Observe runs synchronously on the mutating goroutine and must not
// mutate the container it observes.
type Observer interface {
	Observe(t Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(t Transition)

// Observe calls f(t).
func (f ObserverFunc) Observe(t Transition) {
	f(t)
}

// Persister loads and saves state snapshots by key.
type Persister interface {
	// Load decodes the snapshot stored under key into v. It reports false
	// when no snapshot exists.
	Load(ctx context.Context, key string, v any) (bool, error)

	// Save stores v under key, replacing any previous snapshot.
	Save(ctx context.Context, key string, v any) error
}
