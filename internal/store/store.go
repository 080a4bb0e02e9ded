// Package store provides the application state stores: the async user store
// with its uniform pending/fulfilled/rejected operations, and the counter,
// todo and session stores.
package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/state"
)

// Store names, used in transition traces and as persistence keys.
const (
	AsyncStoreName   = "async-store"
	CounterStoreName = "counter-store"
	TodoStoreName    = "todo-store"
	UserStoreName    = "user-store"

	// SessionStorageKey is the persistence key of the session store.
	SessionStorageKey = "user-storage"
)

// UnknownErrorMessage is recorded when a failure carries no readable message.
const UnknownErrorMessage = "unknown error"

// Store errors.
var (
	ErrBusy               = errors.New("operation already in progress")
	ErrDraining           = errors.New("store is draining")
	ErrEmptyText          = errors.New("todo text cannot be empty")
	ErrDeleteNotConfirmed = errors.New("delete was not confirmed by the data source")

	ErrInvalidOverlapPolicy = errors.New("invalid overlap policy")
)

// OverlapPolicy decides what happens when an operation is invoked while a
// previous invocation of the same operation is still in flight.
type OverlapPolicy int

const (
	// OverlapAllow runs overlapping invocations; results apply in resolution
	// order and the busy flag stays set until the last one resolves.
	OverlapAllow OverlapPolicy = iota
	// OverlapReject refuses the new invocation with ErrBusy.
	OverlapReject
)

// String returns the config name of the policy.
func (p OverlapPolicy) String() string {
	switch p {
	case OverlapAllow:
		return "allow"
	case OverlapReject:
		return "reject"
	default:
		return fmt.Sprintf("OverlapPolicy(%d)", int(p))
	}
}

// ParseOverlapPolicy parses "allow" or "reject".
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch s {
	case "allow", "":
		return OverlapAllow, nil
	case "reject":
		return OverlapReject, nil
	default:
		return OverlapAllow, fmt.Errorf("%w: %q", ErrInvalidOverlapPolicy, s)
	}
}

// ErrorMessage derives the display message of a failure. Errors yield their
// message, strings are used verbatim, and anything else, including empty
// messages, yields UnknownErrorMessage.
func ErrorMessage(failure any) string {
	switch f := failure.(type) {
	case error:
		if msg := f.Error(); msg != "" {
			return msg
		}
	case string:
		if f != "" {
			return f
		}
	}
	return UnknownErrorMessage
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	observers []state.Observer
	persister state.Persister
	policy    OverlapPolicy
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// containerOptions converts store options into container options. The
// persister is only passed through when persist is true.
func (o options) containerOptions(key string, persist bool) []state.Option {
	copts := []state.Option{
		state.WithLogger(o.logger),
		state.WithObserver(o.observers...),
	}
	if persist && o.persister != nil {
		copts = append(copts, state.WithPersister(o.persister, key))
	}
	return copts
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObservers attaches transition observers.
func WithObservers(observers ...state.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, observers...)
	}
}

// WithPersister enables snapshot persistence. The async user store holds
// transient operation state and ignores it.
func WithPersister(p state.Persister) Option {
	return func(o *options) {
		o.persister = p
	}
}

// WithOverlapPolicy sets the overlap policy of the async user store.
func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}
