package datasource

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/idgen"
	"github.com/vyrodovalexey/statestore/internal/model"
)

// Default simulated latencies and list failure rate.
const (
	DefaultListLatency   = 1500 * time.Millisecond
	DefaultCreateLatency = 1000 * time.Millisecond
	DefaultDeleteLatency = 800 * time.Millisecond
	DefaultFailureRate   = 0.2
)

// SimulatedConfig tunes the simulated API.
type SimulatedConfig struct {
	ListLatency   time.Duration
	CreateLatency time.Duration
	DeleteLatency time.Duration
	// FailureRate is the probability in [0, 1] that ListUsers fails.
	FailureRate float64
	// Seed makes the failure sequence reproducible. Zero means random.
	Seed uint64
}

// DefaultSimulatedConfig returns the default simulation settings.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		ListLatency:   DefaultListLatency,
		CreateLatency: DefaultCreateLatency,
		DeleteLatency: DefaultDeleteLatency,
		FailureRate:   DefaultFailureRate,
	}
}

// seedUsers is the collection returned by a successful ListUsers.
var seedUsers = []model.User{
	{ID: 1, Name: "Juan Pérez", Email: "juan@email.com"},
	{ID: 2, Name: "María García", Email: "maria@email.com"},
	{ID: 3, Name: "Carlos López", Email: "carlos@email.com"},
}

// SimulatedAPI is an in-process Source that sleeps to mimic network latency.
// It is safe for concurrent use.
type SimulatedAPI struct {
	cfg    SimulatedConfig
	ids    *idgen.Generator
	logger *zap.Logger
	now    func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// Compile-time check that SimulatedAPI satisfies Source.
var _ Source = (*SimulatedAPI)(nil)

// NewSimulatedAPI creates a simulated API. ids may be shared with other
// components that need process-unique ids; nil creates a private generator.
func NewSimulatedAPI(cfg SimulatedConfig, ids *idgen.Generator, logger *zap.Logger) *SimulatedAPI {
	if ids == nil {
		ids = idgen.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &SimulatedAPI{
		cfg:    cfg,
		ids:    ids,
		logger: logger,
		now:    time.Now,
		rnd:    rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// ListUsers returns the seed users, or ErrNetwork with probability
// FailureRate.
func (a *SimulatedAPI) ListUsers(ctx context.Context) ([]model.User, error) {
	if err := sleep(ctx, a.cfg.ListLatency); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	if a.shouldFail() {
		a.logger.Debug("simulated list failure")
		return nil, ErrNetwork
	}

	users := make([]model.User, len(seedUsers))
	copy(users, seedUsers)

	return users, nil
}

// CreateUser validates the input and returns a new user with a unique id.
func (a *SimulatedAPI) CreateUser(ctx context.Context, in model.CreateUserInput) (model.User, error) {
	if err := sleep(ctx, a.cfg.CreateLatency); err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.User{}, err
	}

	createdAt := a.now().UTC()

	return model.User{
		ID:        a.ids.Next(),
		Name:      in.Name,
		Email:     in.Email,
		CreatedAt: &createdAt,
	}, nil
}

// DeleteUser confirms any positive id. The simulated backend keeps no state,
// so unknown ids are confirmed too.
func (a *SimulatedAPI) DeleteUser(ctx context.Context, id int64) (model.DeleteResult, error) {
	if err := sleep(ctx, a.cfg.DeleteLatency); err != nil {
		return model.DeleteResult{}, fmt.Errorf("delete user: %w", err)
	}

	if id <= 0 {
		return model.DeleteResult{}, ErrUserIDRequired
	}

	return model.DeleteResult{Success: true, DeletedID: id}, nil
}

// shouldFail draws the next failure decision.
func (a *SimulatedAPI) shouldFail() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rnd.Float64() < a.cfg.FailureRate
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
