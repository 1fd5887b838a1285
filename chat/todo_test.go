package chat

import (
	"strings"
	"testing"
)

func TestTodoListValidate(t *testing.T) {
	list := &TodoList{Items: []TodoItem{
		{ID: "a", Description: "first", Status: TodoPending},
		{ID: "b", Description: "second", Status: TodoPending, DependsOn: []string{"a"}},
	}}
	if err := list.Validate(); err != nil {
		t.Fatalf("valid list rejected: %v", err)
	}
}

func TestTodoListValidateRejectsCycle(t *testing.T) {
	list := &TodoList{Items: []TodoItem{
		{ID: "a", Description: "a", Status: TodoPending, DependsOn: []string{"c"}},
		{ID: "b", Description: "b", Status: TodoPending, DependsOn: []string{"a"}},
		{ID: "c", Description: "c", Status: TodoPending, DependsOn: []string{"b"}},
	}}
	err := list.Validate()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestTodoListValidateRejectsBadRefs(t *testing.T) {
	if err := (&TodoList{Items: []TodoItem{
		{ID: "a", Description: "a", Status: TodoPending, DependsOn: []string{"ghost"}},
	}}).Validate(); err == nil {
		t.Error("unknown dependency accepted")
	}
	if err := (&TodoList{Items: []TodoItem{
		{ID: "a", Description: "a", Status: TodoPending},
		{ID: "a", Description: "dup", Status: TodoPending},
	}}).Validate(); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestTodoListDerivedStatus(t *testing.T) {
	list := &TodoList{Items: []TodoItem{
		{ID: "a", Description: "a", Status: TodoCompleted},
		{ID: "b", Description: "b", Status: TodoInProgress},
	}}
	if got := list.Status(); got != TodoListActive {
		t.Errorf("expected active, got %s", got)
	}

	list.Items[1].Status = TodoSkipped
	if got := list.Status(); got != TodoListCompleted {
		t.Errorf("expected completed, got %s", got)
	}

	list.Abandon()
	if got := list.Status(); got != TodoListAbandoned {
		t.Errorf("expected abandoned, got %s", got)
	}
}

func TestParseTodoWrite(t *testing.T) {
	list, err := ParseTodoWrite([]byte(`{"items": [{"id": "1", "description": "do it", "status": "pending"}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Description != "do it" {
		t.Fatalf("unexpected list %+v", list)
	}

	if _, err := ParseTodoWrite([]byte(`not json`)); err == nil {
		t.Error("invalid json accepted")
	}
}
