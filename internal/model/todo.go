package model

// Todo is a single task of the todo list.
type Todo struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// TodoStats is the derived view over a todo list.
type TodoStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// ComputeTodoStats counts todos by completion. Pending is always
// Total minus Completed.
func ComputeTodoStats(todos []Todo) TodoStats {
	completed := 0
	for _, t := range todos {
		if t.Completed {
			completed++
		}
	}

	return TodoStats{
		Total:     len(todos),
		Completed: completed,
		Pending:   len(todos) - completed,
	}
}
