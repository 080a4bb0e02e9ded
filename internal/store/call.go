package store

import (
	"context"
	"slices"
	"sync"
)

// Op identifies an asynchronous operation of the user store.
type Op int

// User store operations.
const (
	OpFetch Op = iota
	OpCreate
	OpDelete

	opCount
)

// Ops lists every operation.
var Ops = []Op{OpFetch, OpCreate, OpDelete}

// String returns the operation's action name.
func (op Op) String() string {
	switch op {
	case OpFetch:
		return "fetchUsers"
	case OpCreate:
		return "createUser"
	case OpDelete:
		return "deleteUser"
	default:
		return "unknown"
	}
}

// Outcome is the resolution state of a Call.
type Outcome int

// Call outcomes.
const (
	OutcomePending Outcome = iota
	OutcomeFulfilled
	OutcomeRejected
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeFulfilled:
		return "fulfilled"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Call is a handle on one in-flight operation invocation.
type Call struct {
	op      Op
	pending UsersState
	done    chan struct{}

	mu      sync.Mutex
	outcome Outcome
	message string
}

func newCall(op Op, pending UsersState) *Call {
	return &Call{
		op:      op,
		pending: pending,
		done:    make(chan struct{}),
	}
}

// Op returns the invoked operation.
func (c *Call) Op() Op {
	return c.op
}

// Pending returns the store state produced by the call's pending
// transition. Later transitions, including the call's own resolution, are
// not reflected.
func (c *Call) Pending() UsersState {
	st := c.pending
	st.Users = slices.Clone(st.Users)
	return st
}

// Done is closed once the resolution transition has been applied.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call resolves or ctx is done. It returns only the
// context error; an operation failure is recorded in the store's error slot
// and reported by Outcome and Message.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome returns the current resolution state.
func (c *Call) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Message returns the recorded failure message of a rejected call.
func (c *Call) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Call) resolve(outcome Outcome, message string) {
	c.mu.Lock()
	c.outcome = outcome
	c.message = message
	c.mu.Unlock()
	close(c.done)
}
