package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/store"
)

// waitParam makes user store mutations answer with the resolved state.
const waitParam = "wait"

// RESTHandler serves the store API.
type RESTHandler struct {
	stores Stores
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(stores Stores, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		stores: stores,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/users", h.GetUsers).Methods(http.MethodGet)
	api.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users", h.ClearUsers).Methods(http.MethodDelete)
	api.HandleFunc("/users/fetch", h.FetchUsers).Methods(http.MethodPost)
	api.HandleFunc("/users/error", h.ClearUserError).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id:[0-9]+}", h.DeleteUser).Methods(http.MethodDelete)

	api.HandleFunc("/counter", h.GetCounter).Methods(http.MethodGet)
	api.HandleFunc("/counter/increment", h.IncrementCounter).Methods(http.MethodPost)
	api.HandleFunc("/counter/decrement", h.DecrementCounter).Methods(http.MethodPost)
	api.HandleFunc("/counter/increment-by", h.IncrementCounterBy).Methods(http.MethodPost)
	api.HandleFunc("/counter/reset", h.ResetCounter).Methods(http.MethodPost)

	api.HandleFunc("/todos", h.ListTodos).Methods(http.MethodGet)
	api.HandleFunc("/todos", h.AddTodo).Methods(http.MethodPost)
	api.HandleFunc("/todos/stats", h.TodoStats).Methods(http.MethodGet)
	api.HandleFunc("/todos/{id:[0-9]+}/toggle", h.ToggleTodo).Methods(http.MethodPost)
	api.HandleFunc("/todos/{id:[0-9]+}", h.RemoveTodo).Methods(http.MethodDelete)

	api.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session", h.SetSession).Methods(http.MethodPut)
	api.HandleFunc("/session", h.Logout).Methods(http.MethodDelete)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// GetUsers handles GET /api/v1/users requests.
func (h *RESTHandler) GetUsers(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.stores.Users.Snapshot()))
}

// FetchUsers handles POST /api/v1/users/fetch requests.
func (h *RESTHandler) FetchUsers(w http.ResponseWriter, r *http.Request) {
	wait, ok := h.parseWait(w, r)
	if !ok {
		return
	}

	call, err := h.stores.Users.FetchUsers(r.Context())
	h.respondCall(w, r, call, err, wait)
}

// CreateUser handles POST /api/v1/users requests. Input is not validated
// here: the data source decides and its rejection lands in the error slot.
func (h *RESTHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	wait, ok := h.parseWait(w, r)
	if !ok {
		return
	}

	var input model.CreateUserInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	call, err := h.stores.Users.CreateUser(r.Context(), input)
	h.respondCall(w, r, call, err, wait)
}

// DeleteUser handles DELETE /api/v1/users/{id} requests.
func (h *RESTHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	wait, ok := h.parseWait(w, r)
	if !ok {
		return
	}

	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	call, err := h.stores.Users.DeleteUser(r.Context(), id)
	h.respondCall(w, r, call, err, wait)
}

// ClearUserError handles DELETE /api/v1/users/error requests.
func (h *RESTHandler) ClearUserError(w http.ResponseWriter, _ *http.Request) {
	h.stores.Users.ClearError()
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.stores.Users.Snapshot()))
}

// ClearUsers handles DELETE /api/v1/users requests.
func (h *RESTHandler) ClearUsers(w http.ResponseWriter, _ *http.Request) {
	h.stores.Users.ClearUsers()
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.stores.Users.Snapshot()))
}

// respondCall answers an async invocation: 202 with the post-pending state,
// or 200 with the resolved state when the caller asked to wait.
func (h *RESTHandler) respondCall(w http.ResponseWriter, r *http.Request, call *store.Call, err error, wait bool) {
	if err != nil {
		switch {
		case errors.Is(err, store.ErrBusy):
			h.writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, store.ErrDraining):
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error("failed to invoke operation", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !wait {
		h.writeJSON(w, http.StatusAccepted, model.NewSuccessResponse(OperationResponse{
			Operation: call.Op().String(),
			Outcome:   store.OutcomePending.String(),
			State:     call.Pending(),
		}))
		return
	}

	if err := call.Wait(r.Context()); err != nil {
		status := http.StatusGatewayTimeout
		if errors.Is(err, context.Canceled) {
			// client went away
			status = http.StatusServiceUnavailable
		}
		h.writeError(w, status, "operation still in progress")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(OperationResponse{
		Operation: call.Op().String(),
		Outcome:   call.Outcome().String(),
		Error:     call.Message(),
		State:     h.stores.Users.Snapshot(),
	}))
}

// GetCounter handles GET /api/v1/counter requests.
func (h *RESTHandler) GetCounter(w http.ResponseWriter, _ *http.Request) {
	h.writeCounter(w, h.stores.Counter.Count())
}

// IncrementCounter handles POST /api/v1/counter/increment requests.
func (h *RESTHandler) IncrementCounter(w http.ResponseWriter, _ *http.Request) {
	h.writeCounter(w, h.stores.Counter.Increment())
}

// DecrementCounter handles POST /api/v1/counter/decrement requests.
func (h *RESTHandler) DecrementCounter(w http.ResponseWriter, _ *http.Request) {
	h.writeCounter(w, h.stores.Counter.Decrement())
}

// IncrementCounterBy handles POST /api/v1/counter/increment-by requests.
func (h *RESTHandler) IncrementCounterBy(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Value *int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Value == nil {
		h.writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	h.writeCounter(w, h.stores.Counter.IncrementBy(*input.Value))
}

// ResetCounter handles POST /api/v1/counter/reset requests.
func (h *RESTHandler) ResetCounter(w http.ResponseWriter, _ *http.Request) {
	h.writeCounter(w, h.stores.Counter.Reset())
}

func (h *RESTHandler) writeCounter(w http.ResponseWriter, count int) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(store.CounterState{Count: count}))
}

// ListTodos handles GET /api/v1/todos requests.
func (h *RESTHandler) ListTodos(w http.ResponseWriter, _ *http.Request) {
	todos := h.stores.Todos.Todos()
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(TodoListResponse{
		Todos: todos,
		Stats: model.ComputeTodoStats(todos),
	}))
}

// AddTodo handles POST /api/v1/todos requests.
func (h *RESTHandler) AddTodo(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	todo, err := h.stores.Todos.Add(input.Text)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(todo))
}

// ToggleTodo handles POST /api/v1/todos/{id}/toggle requests.
func (h *RESTHandler) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if !h.stores.Todos.Toggle(id) {
		h.writeError(w, http.StatusNotFound, "todo not found")
		return
	}

	h.ListTodos(w, r)
}

// RemoveTodo handles DELETE /api/v1/todos/{id} requests.
func (h *RESTHandler) RemoveTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if !h.stores.Todos.Remove(id) {
		h.writeError(w, http.StatusNotFound, "todo not found")
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// TodoStats handles GET /api/v1/todos/stats requests.
func (h *RESTHandler) TodoStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.stores.Todos.Stats()))
}

// GetSession handles GET /api/v1/session requests. The user is null when
// nobody is logged in.
func (h *RESTHandler) GetSession(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.stores.Session.Container().Get()))
}

// SetSession handles PUT /api/v1/session requests.
func (h *RESTHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.stores.Session.SetUser(input.Name, input.Email)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(store.SessionState{User: &session}))
}

// Logout handles DELETE /api/v1/session requests.
func (h *RESTHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.stores.Session.Logout()
	h.writeJSON(w, http.StatusNoContent, nil)
}

// NotFound answers requests that match no route.
func (h *RESTHandler) NotFound(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, http.StatusNotFound, "not found")
}

// MethodNotAllowed answers requests whose path exists under another method.
func (h *RESTHandler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// parseWait reads the wait query parameter, writing 400 when malformed.
func (h *RESTHandler) parseWait(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get(waitParam)
	if raw == "" {
		return false, true
	}

	wait, err := strconv.ParseBool(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "wait must be a boolean")
		return false, false
	}
	return wait, true
}

// parseID reads the id path variable, writing 400 when malformed.
func (h *RESTHandler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error envelope with the given status code.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, model.NewErrorResponse[any](message))
}
