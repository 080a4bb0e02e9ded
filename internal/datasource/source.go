// Package datasource defines the external data source the async user store
// calls into, together with a simulated implementation that mimics a remote
// API with network latency and intermittent failures.
package datasource

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/statestore/internal/model"
)

// Data source errors.
var (
	ErrNetwork        = errors.New("network error: could not load users")
	ErrUserIDRequired = errors.New("user id required")
)

// Source is the external collaborator behind the async user store.
type Source interface {
	// ListUsers returns the full user collection.
	ListUsers(ctx context.Context) ([]model.User, error)

	// CreateUser creates a user with a unique id and CreatedAt set to the
	// creation time.
	CreateUser(ctx context.Context, in model.CreateUserInput) (model.User, error)

	// DeleteUser confirms deletion of the user with the given id.
	DeleteUser(ctx context.Context, id int64) (model.DeleteResult, error)
}
