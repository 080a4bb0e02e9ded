package store

import (
	"context"
	"testing"
	"time"

	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/state"
)

// fakeSource implements datasource.Source with per-method hooks.
type fakeSource struct {
	listFn   func(ctx context.Context) ([]model.User, error)
	createFn func(ctx context.Context, in model.CreateUserInput) (model.User, error)
	deleteFn func(ctx context.Context, id int64) (model.DeleteResult, error)
}

func (f *fakeSource) ListUsers(ctx context.Context) ([]model.User, error) {
	if f.listFn == nil {
		return []model.User{}, nil
	}
	return f.listFn(ctx)
}

func (f *fakeSource) CreateUser(ctx context.Context, in model.CreateUserInput) (model.User, error) {
	if f.createFn == nil {
		return model.User{ID: 1, Name: in.Name, Email: in.Email}, nil
	}
	return f.createFn(ctx, in)
}

func (f *fakeSource) DeleteUser(ctx context.Context, id int64) (model.DeleteResult, error) {
	if f.deleteFn == nil {
		return model.DeleteResult{Success: true, DeletedID: id}, nil
	}
	return f.deleteFn(ctx, id)
}

// listReturning returns a list hook yielding users.
func listReturning(users ...model.User) func(context.Context) ([]model.User, error) {
	return func(context.Context) ([]model.User, error) {
		return users, nil
	}
}

// gatedList returns a list hook that blocks until a result is sent.
func gatedList(results <-chan listResult) func(context.Context) ([]model.User, error) {
	return func(context.Context) ([]model.User, error) {
		r := <-results
		return r.users, r.err
	}
}

type listResult struct {
	users []model.User
	err   error
}

// mustWait waits for call to resolve within a test deadline.
func mustWait(t *testing.T, call *Call) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := call.Wait(ctx); err != nil {
		t.Fatalf("call %s did not resolve: %v", call.Op(), err)
	}
}

// waitAction reads transitions from ch until one named name arrives.
func waitAction(t *testing.T, ch <-chan state.Transition, name string) state.Transition {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case tr := <-ch:
			if tr.Action.Name == name {
				return tr
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
			return state.Transition{}
		}
	}
}

// recorder collects every transition of a store.
type recorder struct {
	transitions []state.Transition
}

func (r *recorder) Observe(t state.Transition) {
	r.transitions = append(r.transitions, t)
}

func ids(users []model.User) []int64 {
	out := make([]int64, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}
