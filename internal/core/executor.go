package core

import (
	"fmt"
	"strconv"
	"time"

	"tasknest.io/tasknest/internal/store"
)

// ToolCallRequest is a tool invocation as issued by the reasoning model.
type ToolCallRequest struct {
	Name string
	Args map[string]any
}

// ToolCallRecord is one executed tool call, returned to the API caller for
// transparency. Records live for a single turn and are never persisted.
type ToolCallRecord struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result"`
}

type toolHandler func(userID string, args map[string]any) any

// Executor dispatches model-issued tool calls against the store. Every path
// returns a value the model can read back; handlers never surface a Go error
// to the orchestrator, because the model can only inspect fields, not faults.
type Executor struct {
	store    *store.SQLiteStore
	handlers map[string]toolHandler
}

func NewExecutor(db *store.SQLiteStore) (*Executor, error) {
	e := &Executor{store: db}
	e.handlers = map[string]toolHandler{
		"add_task":      e.addTask,
		"list_tasks":    e.listTasks,
		"update_task":   e.updateTask,
		"complete_task": e.completeTask,
		"delete_task":   e.deleteTask,
		"get_user_info": e.getUserInfo,
		"search_tasks":  e.searchTasks,
	}

	// The declaration table and the handler table are two halves of one
	// catalog; refuse to start if they have drifted.
	decls := toolDeclarations()
	if len(decls) != len(e.handlers) {
		return nil, fmt.Errorf("tool catalog mismatch: %d declarations, %d handlers", len(decls), len(e.handlers))
	}
	for _, d := range decls {
		if _, ok := e.handlers[d.Name]; !ok {
			return nil, fmt.Errorf("tool %q is declared but has no handler", d.Name)
		}
	}
	return e, nil
}

// Execute runs the named tool for the given user. An unknown name is a
// structured error, never a failure.
func (e *Executor) Execute(name, userID string, args map[string]any) any {
	handler, ok := e.handlers[name]
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Unknown tool: %s", name)}
	}
	if args == nil {
		args = map[string]any{}
	}
	return handler(userID, args)
}

func (e *Executor) addTask(userID string, args map[string]any) any {
	title, ok := stringArg(args, "title")
	if !ok || title == "" {
		return map[string]any{"error": "Missing required parameter: title"}
	}

	var description *string
	if d, ok := stringArg(args, "description"); ok {
		description = &d
	}

	task, err := e.store.CreateTask(userID, title, description)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to add task: %v", err)}
	}
	return taskToResult(task)
}

func (e *Executor) listTasks(userID string, args map[string]any) any {
	status, _ := stringArg(args, "status")
	tasks, err := e.store.ListTasks(userID, status, "")
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to list tasks: %v", err)}
	}
	return tasksToResult(tasks)
}

func (e *Executor) updateTask(userID string, args map[string]any) any {
	taskID, errResult := taskIDArg(args)
	if errResult != nil {
		return errResult
	}

	task, err := e.store.GetTask(taskID)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to load task: %v", err)}
	}
	if task == nil {
		return map[string]any{"error": "Task not found"}
	}
	if task.UserID != userID {
		return map[string]any{"error": "Access denied: Task does not belong to user"}
	}

	if title, ok := stringArg(args, "title"); ok {
		task.Title = title
	}
	if description, ok := stringArg(args, "description"); ok {
		task.Description = &description
	}

	if err := e.store.UpdateTask(task); err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to update task: %v", err)}
	}
	return taskToResult(task)
}

func (e *Executor) completeTask(userID string, args map[string]any) any {
	taskID, errResult := taskIDArg(args)
	if errResult != nil {
		return errResult
	}

	task, err := e.store.GetTask(taskID)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to load task: %v", err)}
	}
	if task == nil {
		return map[string]any{"error": "Task not found"}
	}
	if task.UserID != userID {
		return map[string]any{"error": "Access denied: Task does not belong to user"}
	}

	// Completing an already-completed task is a no-op, not an error.
	task.Completed = true
	if err := e.store.UpdateTask(task); err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to complete task: %v", err)}
	}
	return taskToResult(task)
}

func (e *Executor) deleteTask(userID string, args map[string]any) any {
	raw, present := args["task_id"]
	taskID, ok := coerceTaskID(raw)
	if !present || !ok {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Invalid task ID format: %v. ID must be a number.", raw),
		}
	}

	task, err := e.store.GetTask(taskID)
	if err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("Failed to load task: %v", err)}
	}
	if task == nil {
		return map[string]any{"success": false, "error": "Task not found"}
	}
	if task.UserID != userID {
		return map[string]any{"success": false, "error": "Access denied: Task does not belong to user"}
	}

	if err := e.store.DeleteTask(task.ID); err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("Failed to delete task: %v", err)}
	}
	return map[string]any{"success": true, "message": "Task deleted successfully"}
}

func (e *Executor) getUserInfo(userID string, _ map[string]any) any {
	user, err := e.store.GetUserByID(userID)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to load user: %v", err)}
	}
	if user == nil {
		return map[string]any{"error": "User not found"}
	}
	return map[string]any{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"created_at": user.CreatedAt.Format(time.RFC3339),
	}
}

func (e *Executor) searchTasks(userID string, args map[string]any) any {
	query, ok := stringArg(args, "query")
	if !ok {
		return map[string]any{"error": "Missing required parameter: query"}
	}
	tasks, err := e.store.SearchTasks(userID, query)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Failed to search tasks: %v", err)}
	}
	return tasksToResult(tasks)
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// taskIDArg coerces the task_id argument and, on failure, returns the
// structured error the model is expected to read and react to.
func taskIDArg(args map[string]any) (int64, map[string]any) {
	raw, present := args["task_id"]
	id, ok := coerceTaskID(raw)
	if !present || !ok {
		return 0, map[string]any{"error": fmt.Sprintf("Invalid task ID format: %v. ID must be a number.", raw)}
	}
	return id, nil
}

// coerceTaskID accepts the id however the model chose to type it: a decimal
// string, or a JSON number (which arrives as float64).
func coerceTaskID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// taskToResult flattens a task into the plain structure handed back to the
// model: string id (the model only handles text round-trips reliably) and
// ISO-8601 timestamps.
func taskToResult(task *store.Task) map[string]any {
	var description any
	if task.Description != nil {
		description = *task.Description
	}
	return map[string]any{
		"id":          strconv.FormatInt(task.ID, 10),
		"title":       task.Title,
		"description": description,
		"completed":   task.Completed,
		"created_at":  task.CreatedAt.Format(time.RFC3339),
		"updated_at":  task.UpdatedAt.Format(time.RFC3339),
	}
}

func tasksToResult(tasks []store.Task) []any {
	results := make([]any, 0, len(tasks))
	for i := range tasks {
		results = append(results, taskToResult(&tasks[i]))
	}
	return results
}
