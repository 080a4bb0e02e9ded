package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/datasource"
	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/state"
)

// UsersState is the state of the async user store.
type UsersState struct {
	Users    []model.User `json:"users"`
	Fetching bool         `json:"fetching"`
	Creating bool         `json:"creating"`
	Deleting bool         `json:"deleting"`
	// Error is the message of the most recent failure, empty when none.
	Error string `json:"error,omitempty"`

	inFlight [opCount]int
}

// Busy reports whether op has an invocation in flight.
func (s UsersState) Busy(op Op) bool {
	switch op {
	case OpFetch:
		return s.Fetching
	case OpCreate:
		return s.Creating
	case OpDelete:
		return s.Deleting
	default:
		return false
	}
}

// track adjusts the in-flight count of op and recomputes its busy flag.
func (s *UsersState) track(op Op, delta int) {
	s.inFlight[op] += delta
	busy := s.inFlight[op] > 0
	switch op {
	case OpFetch:
		s.Fetching = busy
	case OpCreate:
		s.Creating = busy
	case OpDelete:
		s.Deleting = busy
	}
}

// mutation applies a successful operation result to the current state.
type mutation func(UsersState) UsersState

// UserStore coordinates asynchronous list, create and delete calls against a
// data source. Each operation sets its busy flag and clears the shared error
// slot synchronously, then resolves on its own goroutine into either a data
// mutation or a recorded error, never both.
type UserStore struct {
	c      *state.Container[UsersState]
	src    datasource.Source
	policy OverlapPolicy
	logger *zap.Logger

	// mu orders wg.Add in invoke against Drain closing the store.
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// NewUserStore creates an async user store over src.
func NewUserStore(src datasource.Source, opts ...Option) *UserStore {
	o := newOptions(opts)

	return &UserStore{
		c:      state.New(AsyncStoreName, UsersState{Users: []model.User{}}, o.containerOptions(AsyncStoreName, false)...),
		src:    src,
		policy: o.policy,
		logger: o.logger.With(zap.String("store", AsyncStoreName)),
	}
}

// FetchUsers replaces the collection with the data source's list.
func (s *UserStore) FetchUsers(ctx context.Context) (*Call, error) {
	return s.invoke(ctx, OpFetch, func(ctx context.Context) (mutation, error) {
		users, err := s.src.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		users = slices.Clone(users)
		if users == nil {
			users = []model.User{}
		}
		return func(st UsersState) UsersState {
			st.Users = users
			return st
		}, nil
	})
}

// CreateUser appends the user created by the data source.
func (s *UserStore) CreateUser(ctx context.Context, in model.CreateUserInput) (*Call, error) {
	return s.invoke(ctx, OpCreate, func(ctx context.Context) (mutation, error) {
		user, err := s.src.CreateUser(ctx, in)
		if err != nil {
			return nil, err
		}
		return func(st UsersState) UsersState {
			st.Users = append(slices.Clone(st.Users), user)
			return st
		}, nil
	})
}

// DeleteUser removes the user with the given id once the data source
// confirms. Relative order of the remaining users is preserved; an id not in
// the collection removes nothing.
func (s *UserStore) DeleteUser(ctx context.Context, id int64) (*Call, error) {
	return s.invoke(ctx, OpDelete, func(ctx context.Context) (mutation, error) {
		res, err := s.src.DeleteUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return nil, ErrDeleteNotConfirmed
		}
		return func(st UsersState) UsersState {
			st.Users = slices.DeleteFunc(slices.Clone(st.Users), func(u model.User) bool {
				return u.ID == id
			})
			return st
		}, nil
	})
}

// ClearError empties the error slot.
func (s *UserStore) ClearError() {
	s.c.Set(state.Named("clearError"), func(st UsersState) UsersState {
		st.Error = ""
		return st
	})
}

// ClearUsers empties the collection and the error slot in one transition.
func (s *UserStore) ClearUsers() {
	s.c.Set(state.Named("clearUsers"), func(st UsersState) UsersState {
		st.Users = []model.User{}
		st.Error = ""
		return st
	})
}

// Snapshot returns the current state. The users slice is a copy.
func (s *UserStore) Snapshot() UsersState {
	st := s.c.Get()
	st.Users = slices.Clone(st.Users)
	return st
}

// Users returns a copy of the collection.
func (s *UserStore) Users() []model.User {
	return slices.Clone(s.c.Get().Users)
}

// IsBusy reports whether op has an invocation in flight.
func (s *UserStore) IsBusy(op Op) bool {
	return s.c.Get().Busy(op)
}

// Error returns the error slot, empty when none.
func (s *UserStore) Error() string {
	return s.c.Get().Error
}

// Container exposes the underlying state container for observers and
// subscriptions.
func (s *UserStore) Container() *state.Container[UsersState] {
	return s.c
}

// Drain blocks until every in-flight call has resolved or ctx is done.
// Operations invoked after Drain has been called fail with ErrDraining.
func (s *UserStore) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain user store: %w", ctx.Err())
	}
}

// invoke runs the pending transition synchronously and resolves the call on
// a new goroutine. The data source call is detached from ctx cancellation.
func (s *UserStore) invoke(
	ctx context.Context,
	op Op,
	call func(ctx context.Context) (mutation, error),
) (*Call, error) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrDraining)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	pending, err := s.c.TrySet(state.Lifecycle(op.String(), state.PhasePending), func(st UsersState) (UsersState, error) {
		if s.policy == OverlapReject && st.inFlight[op] > 0 {
			return st, fmt.Errorf("%s: %w", op, ErrBusy)
		}
		st.track(op, 1)
		st.Error = ""
		return st, nil
	})
	if err != nil {
		s.wg.Done()
		return nil, err
	}

	c := newCall(op, pending)
	started := time.Now()
	callCtx := context.WithoutCancel(ctx)

	go func() {
		defer s.wg.Done()

		apply, failure := s.execute(callCtx, op, call)
		elapsed := time.Since(started)

		if failure != nil {
			msg := ErrorMessage(failure)
			action := state.Lifecycle(op.String(), state.PhaseRejected)
			action.Elapsed = elapsed
			action.Err = msg
			s.c.Set(action, func(st UsersState) UsersState {
				st.track(op, -1)
				st.Error = msg
				return st
			})
			c.resolve(OutcomeRejected, msg)
			return
		}

		action := state.Lifecycle(op.String(), state.PhaseFulfilled)
		action.Elapsed = elapsed
		s.c.Set(action, func(st UsersState) UsersState {
			st = apply(st)
			st.track(op, -1)
			return st
		})
		c.resolve(OutcomeFulfilled, "")
	}()

	return c, nil
}

// execute calls the data source, converting a panic into a failure.
func (s *UserStore) execute(
	ctx context.Context,
	op Op,
	call func(ctx context.Context) (mutation, error),
) (apply mutation, failure any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("data source panicked",
				zap.String("op", op.String()),
				zap.Any("panic", r),
			)
			apply, failure = nil, r
		}
	}()

	m, err := call(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}
