// Package handler provides the HTTP and WebSocket handlers of the statestore
// API.
package handler

import (
	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/store"
)

// Version is the application version reported by the health check. It is
// overridden at build time through the CLI.
var Version = "dev"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Stores groups the stores served by the API.
type Stores struct {
	Users   *store.UserStore
	Counter *store.CounterStore
	Todos   *store.TodoStore
	Session *store.SessionStore
}

// OperationResponse reports an async user store invocation. Without waiting
// the outcome is "pending" and State is the state right after the pending
// transition; when waiting it is the resolved outcome and state.
type OperationResponse struct {
	Operation string           `json:"operation"`
	Outcome   string           `json:"outcome"`
	Error     string           `json:"error,omitempty"`
	State     store.UsersState `json:"state"`
}

// TodoListResponse is the todo list together with its derived statistics.
type TodoListResponse struct {
	Todos []model.Todo    `json:"todos"`
	Stats model.TodoStats `json:"stats"`
}
