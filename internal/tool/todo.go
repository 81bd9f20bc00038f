package tool

import (
	"context"
	"fmt"
	"strings"
)

// TodoCreateTool adds a task to the session's todo list.
type TodoCreateTool struct{}

func (t *TodoCreateTool) Name() string { return "todo_create" }

func (t *TodoCreateTool) Description() string {
	return "Create a todo task to track one step of the current plan, e.g. one slide to generate."
}

func (t *TodoCreateTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject": map[string]any{
				"type":        "string",
				"description": "Short imperative summary of the task",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Optional detail about what completing the task involves",
			},
		},
		"required": []string{"subject"},
	}
}

func (t *TodoCreateTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if call.Todos == nil {
		return Errorf(KindToolExecutionFailed, "todo tracking is unavailable for this session")
	}
	subject, ok := stringParam(params, "subject")
	if !ok || subject == "" {
		return Errorf(KindInvalidArguments, "subject is required")
	}
	description, _ := stringParam(params, "description")

	task := call.Todos.Create(subject, description)
	return Result{
		Content: fmt.Sprintf("Created task %s: %s", task.ID, task.Subject),
		Data:    map[string]any{"id": task.ID},
	}
}

// TodoUpdateTool changes the status or wording of an existing task.
type TodoUpdateTool struct{}

func (t *TodoUpdateTool) Name() string { return "todo_update" }

func (t *TodoUpdateTool) Description() string {
	return "Update a todo task's status, subject or description."
}

func (t *TodoUpdateTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "The task ID to update",
			},
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{TodoStatusPending, TodoStatusInProgress, TodoStatusCompleted},
				"description": "New status for the task",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "New subject for the task",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "New description for the task",
			},
		},
		"required": []string{"id"},
	}
}

func (t *TodoUpdateTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if call.Todos == nil {
		return Errorf(KindToolExecutionFailed, "todo tracking is unavailable for this session")
	}
	id, ok := stringParam(params, "id")
	if !ok || id == "" {
		return Errorf(KindInvalidArguments, "id is required")
	}

	var opts []TodoOption
	if status, ok := stringParam(params, "status"); ok && status != "" {
		if !ValidTodoStatus(status) {
			return Errorf(KindInvalidArguments, "unknown status %q", status)
		}
		opts = append(opts, WithTodoStatus(status))
	}
	if subject, ok := stringParam(params, "subject"); ok && subject != "" {
		opts = append(opts, WithTodoSubject(subject))
	}
	if description, ok := stringParam(params, "description"); ok && description != "" {
		opts = append(opts, WithTodoDescription(description))
	}
	if len(opts) == 0 {
		return Errorf(KindInvalidArguments, "nothing to update: provide status, subject or description")
	}

	task, err := call.Todos.Update(id, opts...)
	if err != nil {
		return Errorf(KindToolExecutionFailed, "%v", err)
	}
	return Textf("Updated task %s: %s [%s]", task.ID, task.Subject, task.Status)
}

// TodoListTool lists the session's tasks.
type TodoListTool struct{}

func (t *TodoListTool) Name() string { return "todo_list" }

func (t *TodoListTool) Description() string {
	return "List all todo tasks for this session with their current status."
}

func (t *TodoListTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

func (t *TodoListTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if call.Todos == nil {
		return Errorf(KindToolExecutionFailed, "todo tracking is unavailable for this session")
	}
	tasks := call.Todos.List()
	if len(tasks) == 0 {
		return Textf("No tasks yet")
	}

	var b strings.Builder
	for _, task := range tasks {
		marker := " "
		switch task.Status {
		case TodoStatusInProgress:
			marker = ">"
		case TodoStatusCompleted:
			marker = "x"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", marker, task.ID, task.Subject)
	}
	return Result{
		Content: strings.TrimRight(b.String(), "\n"),
		Data:    map[string]any{"count": len(tasks)},
	}
}
