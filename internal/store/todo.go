package store

import (
	"slices"
	"strings"

	"github.com/vyrodovalexey/statestore/internal/idgen"
	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/state"
)

// TodoState is the state of the todo store.
type TodoState struct {
	Todos []model.Todo `json:"todos"`
}

// TodoStore manages an ordered todo list.
type TodoStore struct {
	c   *state.Container[TodoState]
	ids *idgen.Generator
}

// NewTodoStore creates an empty todo list. ids may be shared; nil creates a
// private generator.
func NewTodoStore(ids *idgen.Generator, opts ...Option) *TodoStore {
	if ids == nil {
		ids = idgen.New()
	}
	o := newOptions(opts)

	return &TodoStore{
		c:   state.New(TodoStoreName, TodoState{Todos: []model.Todo{}}, o.containerOptions(TodoStoreName, true)...),
		ids: ids,
	}
}

// Add appends a new uncompleted todo.
func (s *TodoStore) Add(text string) (model.Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Todo{}, ErrEmptyText
	}

	todo := model.Todo{ID: s.ids.Next(), Text: text}
	s.c.Set(state.Named("addTodo"), func(st TodoState) TodoState {
		st.Todos = append(slices.Clone(st.Todos), todo)
		return st
	})

	return todo, nil
}

// Toggle flips the completion of the todo with the given id and reports
// whether it existed.
func (s *TodoStore) Toggle(id int64) bool {
	found := false
	s.c.Set(state.Named("toggleTodo"), func(st TodoState) TodoState {
		todos := slices.Clone(st.Todos)
		for i := range todos {
			if todos[i].ID == id {
				todos[i].Completed = !todos[i].Completed
				found = true
			}
		}
		st.Todos = todos
		return st
	})
	return found
}

// Remove deletes the todo with the given id and reports whether it existed.
func (s *TodoStore) Remove(id int64) bool {
	found := false
	s.c.Set(state.Named("removeTodo"), func(st TodoState) TodoState {
		before := len(st.Todos)
		st.Todos = slices.DeleteFunc(slices.Clone(st.Todos), func(t model.Todo) bool {
			return t.ID == id
		})
		found = len(st.Todos) != before
		return st
	})
	return found
}

// Todos returns a copy of the list.
func (s *TodoStore) Todos() []model.Todo {
	return slices.Clone(s.c.Get().Todos)
}

// Stats computes the derived statistics of the current list.
func (s *TodoStore) Stats() model.TodoStats {
	return model.ComputeTodoStats(s.c.Get().Todos)
}

// Container exposes the underlying state container.
func (s *TodoStore) Container() *state.Container[TodoState] {
	return s.c
}
