package store

import (
	"github.com/vyrodovalexey/statestore/internal/state"
)

// CounterState is the state of the counter store.
type CounterState struct {
	Count int `json:"count"`
}

// CounterStore is a simple integer counter.
type CounterStore struct {
	c *state.Container[CounterState]
}

// NewCounterStore creates a counter starting at zero, or at the persisted
// value when a persister is configured.
func NewCounterStore(opts ...Option) *CounterStore {
	o := newOptions(opts)
	return &CounterStore{
		c: state.New(CounterStoreName, CounterState{}, o.containerOptions(CounterStoreName, true)...),
	}
}

// Increment adds one and returns the new count.
func (s *CounterStore) Increment() int {
	return s.add("increment", 1)
}

// Decrement subtracts one and returns the new count.
func (s *CounterStore) Decrement() int {
	return s.add("decrement", -1)
}

// IncrementBy adds n and returns the new count.
func (s *CounterStore) IncrementBy(n int) int {
	return s.add("incrementBy", n)
}

// Reset sets the count to zero.
func (s *CounterStore) Reset() int {
	return s.c.Set(state.Named("reset"), func(CounterState) CounterState {
		return CounterState{}
	}).Count
}

// Count returns the current count.
func (s *CounterStore) Count() int {
	return s.c.Get().Count
}

// Container exposes the underlying state container.
func (s *CounterStore) Container() *state.Container[CounterState] {
	return s.c
}

func (s *CounterStore) add(action string, n int) int {
	return s.c.Set(state.Named(action), func(st CounterState) CounterState {
		st.Count += n
		return st
	}).Count
}
