package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default persistence timeouts.
const (
	DefaultLoadTimeout = 5 * time.Second
	DefaultSaveTimeout = 5 * time.Second
)

// subscriberBuffer is the channel buffer of each subscription.
const subscriberBuffer = 100

// Option configures a Container.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	observers   []Observer
	persister   Persister
	persistKey  string
	saveTimeout time.Duration
}

// WithLogger sets the logger used for persistence failures and observer
// panics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver attaches observers at construction time.
func WithObserver(observers ...Observer) Option {
	return func(o *options) {
		for _, obs := range observers {
			if obs != nil {
				o.observers = append(o.observers, obs)
			}
		}
	}
}

// WithPersister hydrates the container from p on creation and saves a
// snapshot under key after every transition.
func WithPersister(p Persister, key string) Option {
	return func(o *options) {
		o.persister = p
		o.persistKey = key
	}
}

// Container holds state of type S and serializes all changes to it.
type Container[S any] struct {
	name string

	mu    sync.RWMutex
	state S
	seq   uint64

	// Transitions are dispatched strictly in seq order: a transition waits
	// on dispatchCond until dispatched reaches its predecessor.
	dispatchMu   sync.Mutex
	dispatchCond *sync.Cond
	dispatched   uint64
	observers    []Observer

	subMu       sync.RWMutex
	subscribers map[chan Transition]struct{}

	persister   Persister
	persistKey  string
	saveTimeout time.Duration
	logger      *zap.Logger
}

// New creates a container named name holding initial. When a persister is
// configured the stored snapshot, if any, replaces initial. Load failures are
// logged and the container starts from initial.
func New[S any](name string, initial S, opts ...Option) *Container[S] {
	o := options{
		logger:      zap.NewNop(),
		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container[S]{
		name:        name,
		state:       initial,
		observers:   o.observers,
		subscribers: make(map[chan Transition]struct{}),
		persister:   o.persister,
		persistKey:  o.persistKey,
		saveTimeout: o.saveTimeout,
		logger:      o.logger.With(zap.String("store", name)),
	}
	c.dispatchCond = sync.NewCond(&c.dispatchMu)

	if c.persister != nil {
		c.hydrate()
	}

	return c
}

// Name returns the container name.
func (c *Container[S]) Name() string {
	return c.name
}

// Get returns the current state.
func (c *Container[S]) Get() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Seq returns the sequence number of the last transition.
func (c *Container[S]) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// Set applies fn to the current state as a single transition and returns the
// new state. fn must not retain or mutate shared slices of its argument.
func (c *Container[S]) Set(a Action, fn func(S) S) S {
	next, _ := c.TrySet(a, func(s S) (S, error) {
		return fn(s), nil
	})
	return next
}

// TrySet is like Set but fn may refuse the change by returning an error, in
// which case no transition happens and the error is returned.
func (c *Container[S]) TrySet(a Action, fn func(S) (S, error)) (S, error) {
	c.mu.Lock()
	next, err := fn(c.state)
	if err != nil {
		current := c.state
		c.mu.Unlock()
		return current, err
	}
	c.state = next
	c.seq++
	t := Transition{
		Store:  c.name,
		Action: a,
		Seq:    c.seq,
		At:     time.Now().UTC(),
		State:  next,
	}
	c.mu.Unlock()

	c.publish(t, next, true)

	return next, nil
}

// publish saves and dispatches t once every earlier transition has been
// dispatched.
func (c *Container[S]) publish(t Transition, s S, persist bool) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	for c.dispatched+1 != t.Seq {
		c.dispatchCond.Wait()
	}

	// Later transitions wait on this one, so it must count as dispatched
	// even if a persister panics.
	defer func() {
		c.dispatched = t.Seq
		c.dispatchCond.Broadcast()
	}()

	if persist {
		c.save(s)
	}
	c.dispatch(t)
}

// AddObserver attaches an observer for all subsequent transitions.
func (c *Container[S]) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.dispatchMu.Lock()
	c.observers = append(c.observers, obs)
	c.dispatchMu.Unlock()
}

// Subscribe returns a channel receiving every subsequent transition. The
// channel is buffered; transitions are dropped for a subscriber whose buffer
// is full. Call Unsubscribe when done.
func (c *Container[S]) Subscribe() <-chan Transition {
	ch := make(chan Transition, subscriberBuffer)

	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once.
func (c *Container[S]) Unsubscribe(ch <-chan Transition) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for subCh := range c.subscribers {
		if subCh == ch {
			delete(c.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// dispatch notifies observers and subscribers. Caller holds dispatchMu.
func (c *Container[S]) dispatch(t Transition) {
	for _, obs := range c.observers {
		c.notify(obs, t)
	}

	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for ch := range c.subscribers {
		select {
		case ch <- t:
		default:
			// slow subscriber
		}
	}
}

// notify delivers t to one observer. A panicking observer is logged and
// skipped; the remaining observers still see t.
func (c *Container[S]) notify(obs Observer, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("observer panicked",
				zap.String("action", t.Action.Name),
				zap.Uint64("seq", t.Seq),
				zap.Any("panic", r),
			)
		}
	}()

	obs.Observe(t)
}

// save writes a snapshot of s. Caller holds dispatchMu so snapshots are
// written in transition order.
func (c *Container[S]) save(s S) {
	if c.persister == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()

	if err := c.persister.Save(ctx, c.persistKey, s); err != nil {
		c.logger.Error("failed to save state snapshot",
			zap.String("key", c.persistKey),
			zap.Error(err),
		)
	}
}

// hydrate replaces the initial state with the persisted snapshot.
func (c *Container[S]) hydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultLoadTimeout)
	defer cancel()

	var loaded S
	found, err := c.persister.Load(ctx, c.persistKey, &loaded)
	if err != nil {
		c.logger.Warn("failed to load state snapshot, using initial state",
			zap.String("key", c.persistKey),
			zap.Error(err),
		)
		return
	}
	if !found {
		return
	}

	c.mu.Lock()
	c.state = loaded
	c.seq++
	t := Transition{
		Store:  c.name,
		Action: Action{Name: "persist/" + string(PhaseHydrated), Phase: PhaseHydrated},
		Seq:    c.seq,
		At:     time.Now().UTC(),
		State:  loaded,
	}
	c.mu.Unlock()

	c.publish(t, loaded, false)

	c.logger.Debug("state hydrated from snapshot", zap.String("key", c.persistKey))
}
