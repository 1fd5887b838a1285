package chat

import (
	"encoding/json"
	"fmt"

	"github.com/bigduu/chatengine/llm"
)

// TodoStatus is the lifecycle state of one todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoSkipped    TodoStatus = "skipped"
	TodoFailed     TodoStatus = "failed"
)

func (s TodoStatus) terminal() bool {
	switch s {
	case TodoCompleted, TodoSkipped, TodoFailed:
		return true
	}
	return false
}

// TodoListStatus is derived from item statuses, never stored directly.
// Abandoned is only reachable by explicit external action.
type TodoListStatus string

const (
	TodoListActive    TodoListStatus = "active"
	TodoListCompleted TodoListStatus = "completed"
	TodoListAbandoned TodoListStatus = "abandoned"
)

// TodoItem is one entry in the agent's side-tracked work list.
type TodoItem struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      TodoStatus `json:"status"`
	Order       int        `json:"order"`
	DependsOn   []string   `json:"depends_on,omitempty"`
}

// TodoList is the agent-maintained work list for one session.
type TodoList struct {
	Items     []TodoItem `json:"items"`
	Abandoned bool       `json:"abandoned,omitempty"`
}

// Validate checks item ids are unique, dependencies reference known items,
// and the dependency graph is acyclic.
func (l *TodoList) Validate() error {
	byID := make(map[string]*TodoItem, len(l.Items))
	for i := range l.Items {
		item := &l.Items[i]
		if item.ID == "" {
			return fmt.Errorf("todo item %d has no id", i)
		}
		if _, dup := byID[item.ID]; dup {
			return fmt.Errorf("duplicate todo id %q", item.ID)
		}
		byID[item.ID] = item
	}

	for _, item := range l.Items {
		for _, dep := range item.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("todo %q depends on unknown item %q", item.ID, dep)
			}
		}
	}

	// Cycle check by depth-first walk. 0 unvisited, 1 on stack, 2 done.
	colors := make(map[string]int, len(l.Items))
	var visit func(id string) error
	visit = func(id string) error {
		switch colors[id] {
		case 1:
			return fmt.Errorf("todo dependency cycle through %q", id)
		case 2:
			return nil
		}
		colors[id] = 1
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[id] = 2
		return nil
	}
	for _, item := range l.Items {
		if err := visit(item.ID); err != nil {
			return err
		}
	}
	return nil
}

// Status derives the overall list status.
func (l *TodoList) Status() TodoListStatus {
	if l.Abandoned {
		return TodoListAbandoned
	}
	for _, item := range l.Items {
		if !item.Status.terminal() {
			return TodoListActive
		}
	}
	for _, item := range l.Items {
		if item.Status == TodoFailed {
			return TodoListActive
		}
	}
	return TodoListCompleted
}

// Abandon marks the list abandoned. This is an external action; the agent
// never abandons its own list.
func (l *TodoList) Abandon() {
	l.Abandoned = true
}

// TodoWriteToolName is the built-in capability name the agent loop
// intercepts before registry dispatch.
const TodoWriteToolName = "todo_write"

// TodoWriteDefinition describes the built-in todo_write tool, advertised
// alongside registry capabilities.
func TodoWriteDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        TodoWriteToolName,
		Description: "Replace the session todo list. Use it to plan and track multi-step work. Send the full list every time.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"items": map[string]any{
					"type":        "array",
					"description": "The complete todo list, in order.",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":          map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
							"status": map[string]any{
								"type": "string",
								"enum": []string{"pending", "in_progress", "completed", "skipped", "failed"},
							},
							"order":      map[string]any{"type": "integer"},
							"depends_on": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
						"required": []string{"id", "description", "status"},
					},
				},
			},
			"required": []string{"items"},
		},
	}
}

// ParseTodoWrite parses and validates todo_write arguments.
func ParseTodoWrite(args json.RawMessage) (*TodoList, error) {
	var list TodoList
	if err := json.Unmarshal(args, &list); err != nil {
		return nil, fmt.Errorf("parse todo list: %w", err)
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	return &list, nil
}
