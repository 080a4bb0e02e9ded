package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/idgen"
	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/state"
)

func TestNewUserStore(t *testing.T) {
	// Act
	s := NewUserStore(&fakeSource{}, WithLogger(zap.NewNop()))

	// Assert
	st := s.Snapshot()
	if st.Users == nil || len(st.Users) != 0 {
		t.Errorf("Users = %v, want empty non-nil", st.Users)
	}
	if st.Fetching || st.Creating || st.Deleting {
		t.Error("no operation should be busy initially")
	}
	if st.Error != "" {
		t.Errorf("Error = %q, want empty", st.Error)
	}
	if s.Container().Name() != AsyncStoreName {
		t.Errorf("Name() = %s, want %s", s.Container().Name(), AsyncStoreName)
	}
}

func TestUserStore_FetchUsers_ReplacesCollection(t *testing.T) {
	// Arrange
	src := &fakeSource{listFn: listReturning(
		model.User{ID: 1, Name: "Juan"},
		model.User{ID: 2, Name: "María"},
	)}
	s := NewUserStore(src)

	// Act
	call, err := s.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchUsers() unexpected error: %v", err)
	}
	mustWait(t, call)

	// Assert
	got := s.Snapshot()
	if !slices.Equal(ids(got.Users), []int64{1, 2}) {
		t.Errorf("user ids = %v, want [1 2]", ids(got.Users))
	}
	if got.Fetching {
		t.Error("Fetching should be false after resolution")
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
	if call.Outcome() != OutcomeFulfilled {
		t.Errorf("Outcome = %s, want fulfilled", call.Outcome())
	}
}

func TestUserStore_CreateUser_FailureRecordsError(t *testing.T) {
	// Arrange
	src := &fakeSource{
		listFn: listReturning(model.User{ID: 1}),
		createFn: func(context.Context, model.CreateUserInput) (model.User, error) {
			return model.User{}, errors.New("invalid data")
		},
	}
	s := NewUserStore(src)
	fetch, _ := s.FetchUsers(context.Background())
	mustWait(t, fetch)

	// Act
	call, err := s.CreateUser(context.Background(), model.CreateUserInput{Name: "Ana", Email: "ana@x.com"})
	if err != nil {
		t.Fatalf("CreateUser() unexpected error: %v", err)
	}
	mustWait(t, call)

	// Assert
	got := s.Snapshot()
	if !slices.Equal(ids(got.Users), []int64{1}) {
		t.Errorf("user ids = %v, want unchanged [1]", ids(got.Users))
	}
	if got.Error != "invalid data" {
		t.Errorf("Error = %q, want %q", got.Error, "invalid data")
	}
	if got.Creating {
		t.Error("Creating should be false after resolution")
	}
	if call.Outcome() != OutcomeRejected || call.Message() != "invalid data" {
		t.Errorf("call = %s/%q, want rejected/invalid data", call.Outcome(), call.Message())
	}
}

func TestUserStore_DeleteUser_UnknownIDRemovesNothing(t *testing.T) {
	// Arrange
	src := &fakeSource{listFn: listReturning(model.User{ID: 1}, model.User{ID: 2})}
	s := NewUserStore(src)
	fetch, _ := s.FetchUsers(context.Background())
	mustWait(t, fetch)

	// Act
	call, err := s.DeleteUser(context.Background(), 5)
	if err != nil {
		t.Fatalf("DeleteUser() unexpected error: %v", err)
	}
	mustWait(t, call)

	// Assert
	got := s.Snapshot()
	if !slices.Equal(ids(got.Users), []int64{1, 2}) {
		t.Errorf("user ids = %v, want [1 2]", ids(got.Users))
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
	if got.Deleting {
		t.Error("Deleting should be false after resolution")
	}
}

func TestUserStore_DeleteUser_PreservesOrder(t *testing.T) {
	// Arrange
	src := &fakeSource{listFn: listReturning(
		model.User{ID: 10, Name: "A"},
		model.User{ID: 20, Name: "B"},
		model.User{ID: 30, Name: "C"},
	)}
	s := NewUserStore(src)
	fetch, _ := s.FetchUsers(context.Background())
	mustWait(t, fetch)

	// Act
	call, _ := s.DeleteUser(context.Background(), 20)
	mustWait(t, call)

	// Assert
	if got := ids(s.Users()); !slices.Equal(got, []int64{10, 30}) {
		t.Errorf("user ids = %v, want [10 30]", got)
	}
}

func TestUserStore_DeleteUser_NotConfirmed(t *testing.T) {
	// Arrange
	src := &fakeSource{
		listFn: listReturning(model.User{ID: 1}),
		deleteFn: func(context.Context, int64) (model.DeleteResult, error) {
			return model.DeleteResult{Success: false}, nil
		},
	}
	s := NewUserStore(src)
	fetch, _ := s.FetchUsers(context.Background())
	mustWait(t, fetch)

	// Act
	call, _ := s.DeleteUser(context.Background(), 1)
	mustWait(t, call)

	// Assert
	if len(s.Users()) != 1 {
		t.Errorf("len(users) = %d, want 1", len(s.Users()))
	}
	if s.Error() != ErrDeleteNotConfirmed.Error() {
		t.Errorf("Error = %q, want %q", s.Error(), ErrDeleteNotConfirmed.Error())
	}
}

func TestUserStore_ClearUsers_SingleTransition(t *testing.T) {
	// Arrange
	src := &fakeSource{
		listFn: listReturning(model.User{ID: 1}, model.User{ID: 2}),
		deleteFn: func(context.Context, int64) (model.DeleteResult, error) {
			return model.DeleteResult{}, errors.New("user id required")
		},
	}
	s := NewUserStore(src)
	fetch, _ := s.FetchUsers(context.Background())
	mustWait(t, fetch)
	del, _ := s.DeleteUser(context.Background(), 1)
	mustWait(t, del)
	if s.Error() == "" {
		t.Fatal("precondition: error slot should be set")
	}
	rec := &recorder{}
	s.Container().AddObserver(rec)

	// Act
	s.ClearUsers()

	// Assert
	if len(rec.transitions) != 1 {
		t.Fatalf("transitions = %d, want 1", len(rec.transitions))
	}
	tr := rec.transitions[0]
	if tr.Action.Name != "clearUsers" {
		t.Errorf("action = %s, want clearUsers", tr.Action.Name)
	}
	st := tr.State.(UsersState)
	if len(st.Users) != 0 || st.Error != "" {
		t.Errorf("state = %+v, want empty users and no error", st)
	}
	if len(s.Users()) != 0 || s.Error() != "" {
		t.Error("store should be empty with no error")
	}
}

func TestUserStore_ClearError(t *testing.T) {
	// Arrange
	src := &fakeSource{
		listFn: func(context.Context) ([]model.User, error) {
			return nil, errors.New("network down")
		},
	}
	s := NewUserStore(src)
	call, _ := s.FetchUsers(context.Background())
	mustWait(t, call)

	// Act
	s.ClearError()

	// Assert
	if s.Error() != "" {
		t.Errorf("Error = %q, want empty", s.Error())
	}
}

func TestUserStore_BusyFlagAlwaysResets(t *testing.T) {
	failing := errors.New("boom")
	tests := []struct {
		name   string
		op     Op
		src    *fakeSource
		invoke func(*UserStore) (*Call, error)
	}{
		{
			name: "fetch success",
			op:   OpFetch,
			src:  &fakeSource{},
		},
		{
			name: "fetch failure",
			op:   OpFetch,
			src: &fakeSource{listFn: func(context.Context) ([]model.User, error) {
				return nil, failing
			}},
		},
		{
			name: "create success",
			op:   OpCreate,
			src:  &fakeSource{},
		},
		{
			name: "create failure",
			op:   OpCreate,
			src: &fakeSource{createFn: func(context.Context, model.CreateUserInput) (model.User, error) {
				return model.User{}, failing
			}},
		},
		{
			name: "delete success",
			op:   OpDelete,
			src:  &fakeSource{},
		},
		{
			name: "delete failure",
			op:   OpDelete,
			src: &fakeSource{deleteFn: func(context.Context, int64) (model.DeleteResult, error) {
				return model.DeleteResult{}, failing
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s := NewUserStore(tt.src)
			ctx := context.Background()

			// Act
			var call *Call
			var err error
			switch tt.op {
			case OpFetch:
				call, err = s.FetchUsers(ctx)
			case OpCreate:
				call, err = s.CreateUser(ctx, model.CreateUserInput{Name: "n", Email: "e"})
			case OpDelete:
				call, err = s.DeleteUser(ctx, 1)
			}
			if err != nil {
				t.Fatalf("invoke unexpected error: %v", err)
			}
			mustWait(t, call)

			// Assert
			for _, op := range Ops {
				if s.IsBusy(op) {
					t.Errorf("IsBusy(%s) = true after resolution", op)
				}
			}
		})
	}
}

func TestUserStore_OutcomesAreMutuallyExclusive(t *testing.T) {
	// Arrange
	var mu sync.Mutex
	fail := false
	src := &fakeSource{
		createFn: func(_ context.Context, in model.CreateUserInput) (model.User, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return model.User{}, errors.New("rejected")
			}
			return model.User{ID: 7, Name: in.Name}, nil
		},
	}
	s := NewUserStore(src)
	rec := &recorder{}
	s.Container().AddObserver(rec)

	// Act
	ok, _ := s.CreateUser(context.Background(), model.CreateUserInput{Name: "a", Email: "a"})
	mustWait(t, ok)
	mu.Lock()
	fail = true
	mu.Unlock()
	bad, _ := s.CreateUser(context.Background(), model.CreateUserInput{Name: "b", Email: "b"})
	mustWait(t, bad)

	// Assert
	var prev UsersState
	for _, tr := range rec.transitions {
		st := tr.State.(UsersState)
		switch tr.Action.Phase {
		case state.PhaseFulfilled:
			if st.Error != "" {
				t.Errorf("fulfilled transition set error %q", st.Error)
			}
		case state.PhaseRejected:
			if !slices.Equal(ids(st.Users), ids(prev.Users)) {
				t.Errorf("rejected transition changed users %v -> %v", ids(prev.Users), ids(st.Users))
			}
			if st.Error == "" {
				t.Error("rejected transition should set error")
			}
		}
		prev = st
	}
	if got := len(rec.transitions); got != 4 {
		t.Errorf("transitions = %d, want 4", got)
	}
}

func TestUserStore_CreateUser_UniqueIDs(t *testing.T) {
	// Arrange
	gen := idgen.New()
	src := &fakeSource{
		createFn: func(_ context.Context, in model.CreateUserInput) (model.User, error) {
			return model.User{ID: gen.Next(), Name: in.Name, Email: in.Email}, nil
		},
	}
	s := NewUserStore(src)
	const n = 25

	// Act
	calls := make([]*Call, 0, n)
	for i := 0; i < n; i++ {
		call, err := s.CreateUser(context.Background(), model.CreateUserInput{Name: "n", Email: "e"})
		if err != nil {
			t.Fatalf("CreateUser() unexpected error: %v", err)
		}
		calls = append(calls, call)
	}
	for _, call := range calls {
		mustWait(t, call)
	}

	// Assert
	users := s.Users()
	if len(users) != n {
		t.Fatalf("len(users) = %d, want %d", len(users), n)
	}
	seen := make(map[int64]bool)
	for _, u := range users {
		if seen[u.ID] {
			t.Fatalf("duplicate id %d", u.ID)
		}
		seen[u.ID] = true
	}
	if s.IsBusy(OpCreate) {
		t.Error("Creating should be false once all creates resolved")
	}
}

func TestUserStore_PendingClearsErrorBeforeResolution(t *testing.T) {
	// Arrange
	results := make(chan listResult, 1)
	s := NewUserStore(&fakeSource{listFn: gatedList(results)})
	results <- listResult{err: errors.New("first failure")}
	first, _ := s.FetchUsers(context.Background())
	mustWait(t, first)
	if s.Error() != "first failure" {
		t.Fatalf("precondition: Error = %q, want first failure", s.Error())
	}

	// Act
	second, err := s.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchUsers() unexpected error: %v", err)
	}

	// Assert: the pending transition is applied before invoke returns.
	if s.Error() != "" {
		t.Errorf("Error = %q, want cleared at pending", s.Error())
	}
	if !s.IsBusy(OpFetch) {
		t.Error("Fetching should be true while the call is in flight")
	}
	if second.Outcome() != OutcomePending {
		t.Errorf("Outcome = %s, want pending", second.Outcome())
	}

	results <- listResult{users: []model.User{{ID: 1}}}
	mustWait(t, second)
	if s.IsBusy(OpFetch) {
		t.Error("Fetching should be false after resolution")
	}
}

func TestUserStore_IndependentBusyFlags(t *testing.T) {
	// Arrange
	listResults := make(chan listResult)
	createRelease := make(chan struct{})
	src := &fakeSource{
		listFn: gatedList(listResults),
		createFn: func(_ context.Context, in model.CreateUserInput) (model.User, error) {
			<-createRelease
			return model.User{ID: 9, Name: in.Name}, nil
		},
	}
	s := NewUserStore(src)

	// Act
	fetch, _ := s.FetchUsers(context.Background())
	create, _ := s.CreateUser(context.Background(), model.CreateUserInput{Name: "x", Email: "y"})

	// Assert
	if !s.IsBusy(OpFetch) || !s.IsBusy(OpCreate) {
		t.Fatal("both fetch and create should be busy")
	}
	if s.IsBusy(OpDelete) {
		t.Error("delete should not be busy")
	}

	close(createRelease)
	mustWait(t, create)
	if !s.IsBusy(OpFetch) {
		t.Error("Fetching should remain true while fetch is in flight")
	}
	if s.IsBusy(OpCreate) {
		t.Error("Creating should be false after create resolved")
	}

	listResults <- listResult{users: []model.User{{ID: 1}}}
	mustWait(t, fetch)
	if s.IsBusy(OpFetch) {
		t.Error("Fetching should be false after fetch resolved")
	}
}

func TestUserStore_OverlapAllow_LastResolutionWins(t *testing.T) {
	// Arrange
	results := make(chan listResult)
	s := NewUserStore(&fakeSource{listFn: gatedList(results)}, WithOverlapPolicy(OverlapAllow))
	sub := s.Container().Subscribe()
	defer s.Container().Unsubscribe(sub)

	// Act
	first, err := s.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("first FetchUsers() unexpected error: %v", err)
	}
	second, err := s.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("second FetchUsers() unexpected error: %v", err)
	}

	results <- listResult{users: []model.User{{ID: 1}}}
	waitAction(t, sub, "fetchUsers/fulfilled")

	// Assert: one call is still in flight.
	if !s.IsBusy(OpFetch) {
		t.Error("Fetching should stay true while a fetch is outstanding")
	}

	results <- listResult{users: []model.User{{ID: 2}, {ID: 3}}}
	mustWait(t, first)
	mustWait(t, second)

	if got := ids(s.Users()); !slices.Equal(got, []int64{2, 3}) {
		t.Errorf("user ids = %v, want last resolution [2 3]", got)
	}
	if s.IsBusy(OpFetch) {
		t.Error("Fetching should be false once both resolved")
	}
}

func TestUserStore_OverlapReject(t *testing.T) {
	// Arrange
	results := make(chan listResult, 1)
	s := NewUserStore(&fakeSource{listFn: gatedList(results)}, WithOverlapPolicy(OverlapReject))
	first, err := s.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("first FetchUsers() unexpected error: %v", err)
	}
	seq := s.Container().Seq()

	// Act
	second, err := s.FetchUsers(context.Background())

	// Assert
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second FetchUsers() error = %v, want %v", err, ErrBusy)
	}
	if second != nil {
		t.Error("rejected invocation should not return a call")
	}
	if s.Container().Seq() != seq {
		t.Error("rejected invocation should not produce a transition")
	}

	// Other operations are unaffected.
	create, err := s.CreateUser(context.Background(), model.CreateUserInput{Name: "a", Email: "b"})
	if err != nil {
		t.Fatalf("CreateUser() unexpected error: %v", err)
	}
	mustWait(t, create)

	results <- listResult{users: []model.User{}}
	mustWait(t, first)

	third, err := s.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchUsers() after resolution unexpected error: %v", err)
	}
	results <- listResult{users: []model.User{}}
	mustWait(t, third)
}

func TestUserStore_SourcePanicBecomesError(t *testing.T) {
	tests := []struct {
		name    string
		panicV  any
		wantMsg string
	}{
		{name: "error value", panicV: errors.New("exploded"), wantMsg: "exploded"},
		{name: "string value", panicV: "plain string", wantMsg: "plain string"},
		{name: "opaque value", panicV: 42, wantMsg: UnknownErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			src := &fakeSource{listFn: func(context.Context) ([]model.User, error) {
				panic(tt.panicV)
			}}
			s := NewUserStore(src)

			// Act
			call, _ := s.FetchUsers(context.Background())
			mustWait(t, call)

			// Assert
			if s.Error() != tt.wantMsg {
				t.Errorf("Error = %q, want %q", s.Error(), tt.wantMsg)
			}
			if s.IsBusy(OpFetch) {
				t.Error("Fetching should be false after a panic")
			}
		})
	}
}

func TestUserStore_CallerCancellationDoesNotAbortCall(t *testing.T) {
	// Arrange
	src := &fakeSource{listFn: func(ctx context.Context) ([]model.User, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []model.User{{ID: 1}}, nil
	}}
	s := NewUserStore(src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	call, err := s.FetchUsers(ctx)
	if err != nil {
		t.Fatalf("FetchUsers() unexpected error: %v", err)
	}
	mustWait(t, call)

	// Assert
	if call.Outcome() != OutcomeFulfilled {
		t.Errorf("Outcome = %s, want fulfilled", call.Outcome())
	}
	if len(s.Users()) != 1 {
		t.Errorf("len(users) = %d, want 1", len(s.Users()))
	}
}

func TestCall_WaitHonorsContext(t *testing.T) {
	// Arrange
	results := make(chan listResult, 1)
	s := NewUserStore(&fakeSource{listFn: gatedList(results)})
	call, _ := s.FetchUsers(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	err := call.Wait(ctx)

	// Assert
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want %v", err, context.Canceled)
	}

	results <- listResult{}
	mustWait(t, call)
}

func TestUserStore_Drain(t *testing.T) {
	// Arrange
	results := make(chan listResult, 1)
	s := NewUserStore(&fakeSource{listFn: gatedList(results)})
	_, _ = s.FetchUsers(context.Background())

	// Act: draining with an expired context fails while the call is pending.
	expired, cancel := context.WithCancel(context.Background())
	cancel()
	errExpired := s.Drain(expired)

	results <- listResult{}
	errDone := s.Drain(context.Background())

	// Assert
	if !errors.Is(errExpired, context.Canceled) {
		t.Errorf("Drain(expired) error = %v, want %v", errExpired, context.Canceled)
	}
	if errDone != nil {
		t.Errorf("Drain() unexpected error: %v", errDone)
	}
	if s.IsBusy(OpFetch) {
		t.Error("Fetching should be false after drain")
	}
}

func TestUserStore_InvokeAfterDrainFails(t *testing.T) {
	tests := []struct {
		name   string
		invoke func(s *UserStore) (*Call, error)
	}{
		{
			name:   "fetch",
			invoke: func(s *UserStore) (*Call, error) { return s.FetchUsers(context.Background()) },
		},
		{
			name: "create",
			invoke: func(s *UserStore) (*Call, error) {
				return s.CreateUser(context.Background(), model.CreateUserInput{Name: "Ana", Email: "ana@example.com"})
			},
		},
		{
			name:   "delete",
			invoke: func(s *UserStore) (*Call, error) { return s.DeleteUser(context.Background(), 1) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var observed int
			obs := state.ObserverFunc(func(state.Transition) { observed++ })
			s := NewUserStore(&fakeSource{}, WithObservers(obs))
			if err := s.Drain(context.Background()); err != nil {
				t.Fatalf("Drain() error = %v", err)
			}

			// Act
			call, err := tt.invoke(s)

			// Assert
			if !errors.Is(err, ErrDraining) {
				t.Errorf("error = %v, want %v", err, ErrDraining)
			}
			if call != nil {
				t.Error("call should be nil when the store is draining")
			}
			if observed != 0 {
				t.Errorf("observed %d transitions, want 0", observed)
			}
		})
	}
}

func TestUserStore_BusyRefusalDoesNotHoldDrain(t *testing.T) {
	// Arrange
	results := make(chan listResult, 1)
	s := NewUserStore(&fakeSource{listFn: gatedList(results)}, WithOverlapPolicy(OverlapReject))
	first, _ := s.FetchUsers(context.Background())
	if _, err := s.FetchUsers(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second FetchUsers() error = %v, want %v", err, ErrBusy)
	}

	// Act
	results <- listResult{}
	mustWait(t, first)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Drain(ctx)

	// Assert
	if err != nil {
		t.Errorf("Drain() error = %v, want nil", err)
	}
}

func TestCall_PendingIsTheInvocationState(t *testing.T) {
	// Arrange
	results := make(chan listResult, 1)
	s := NewUserStore(&fakeSource{listFn: gatedList(results)})
	s.Container().Set(state.Named("seed"), func(st UsersState) UsersState {
		st.Error = "stale"
		return st
	})

	// Act
	call, err := s.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchUsers() unexpected error: %v", err)
	}
	results <- listResult{users: []model.User{{ID: 1}, {ID: 2}}}
	mustWait(t, call)
	pending := call.Pending()

	// Assert
	if !pending.Fetching || pending.Error != "" || len(pending.Users) != 0 {
		t.Errorf("Pending() = %+v, want fetching with cleared error and no users", pending)
	}
	if s.IsBusy(OpFetch) || len(s.Users()) != 2 {
		t.Errorf("resolved state = %+v, want two users and not fetching", s.Snapshot())
	}
}

func TestUserStore_SnapshotIsACopy(t *testing.T) {
	// Arrange
	s := NewUserStore(&fakeSource{listFn: listReturning(model.User{ID: 1, Name: "orig"})})
	call, _ := s.FetchUsers(context.Background())
	mustWait(t, call)

	// Act
	snap := s.Snapshot()
	snap.Users[0].Name = "mutated"

	// Assert
	if s.Users()[0].Name != "orig" {
		t.Error("mutating a snapshot changed the store")
	}
}
