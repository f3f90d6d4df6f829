package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tasknest.io/tasknest/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestExecutor(t *testing.T) (*Executor, *store.SQLiteStore) {
	t.Helper()
	db := newTestStore(t)
	exec, err := NewExecutor(db)
	require.NoError(t, err)

	require.NoError(t, db.CreateUser(&store.User{ID: "alice", Email: "alice@example.com", Name: "Alice"}))
	require.NoError(t, db.CreateUser(&store.User{ID: "bob", Email: "bob@example.com", Name: "Bob"}))
	return exec, db
}

func resultMap(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected map result, got %T", v)
	return m
}

func TestEveryDeclaredToolHasAHandler(t *testing.T) {
	exec, _ := newTestExecutor(t)
	for _, decl := range toolDeclarations() {
		_, ok := exec.handlers[decl.Name]
		assert.True(t, ok, "tool %q has no handler", decl.Name)
	}
	assert.Len(t, exec.handlers, len(toolDeclarations()))
}

func TestUnknownToolIsStructuredError(t *testing.T) {
	exec, _ := newTestExecutor(t)
	res := resultMap(t, exec.Execute("launch_missiles", "alice", nil))
	assert.Equal(t, "Unknown tool: launch_missiles", res["error"])
}

func TestAddThenListRoundTrip(t *testing.T) {
	exec, _ := newTestExecutor(t)

	added := resultMap(t, exec.Execute("add_task", "alice", map[string]any{"title": "Buy milk"}))
	require.NotContains(t, added, "error")
	assert.Equal(t, "Buy milk", added["title"])
	assert.Equal(t, false, added["completed"])
	assert.IsType(t, "", added["id"])

	listed, ok := exec.Execute("list_tasks", "alice", map[string]any{"status": "pending"}).([]any)
	require.True(t, ok)
	require.Len(t, listed, 1)
	entry := resultMap(t, listed[0])
	assert.Equal(t, "Buy milk", entry["title"])
	assert.Equal(t, false, entry["completed"])
}

func TestTaskIDCoercion(t *testing.T) {
	exec, db := newTestExecutor(t)
	task, err := db.CreateTask("alice", "Original", nil)
	require.NoError(t, err)

	res := resultMap(t, exec.Execute("update_task", "alice", map[string]any{"task_id": "abc", "title": "New"}))
	assert.Equal(t, "Invalid task ID format: abc. ID must be a number.", res["error"])

	// No mutation happened.
	reloaded, err := db.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", reloaded.Title)

	// JSON numbers arrive as float64; that spelling is accepted.
	res = resultMap(t, exec.Execute("update_task", "alice", map[string]any{"task_id": float64(task.ID), "title": "New"}))
	require.NotContains(t, res, "error")
	assert.Equal(t, "New", res["title"])
}

func TestOwnershipIsEnforced(t *testing.T) {
	exec, db := newTestExecutor(t)
	task, err := db.CreateTask("alice", "Private", nil)
	require.NoError(t, err)
	taskID := task.ID

	for _, tool := range []string{"update_task", "complete_task", "delete_task"} {
		res := resultMap(t, exec.Execute(tool, "bob", map[string]any{"task_id": "1", "title": "hijack"}))
		assert.Equal(t, "Access denied: Task does not belong to user", res["error"], "tool %s", tool)
	}

	// Task is untouched.
	reloaded, err := db.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, "Private", reloaded.Title)
	assert.False(t, reloaded.Completed)

	res := resultMap(t, exec.Execute("complete_task", "bob", map[string]any{"task_id": "99999"}))
	assert.Equal(t, "Task not found", res["error"])
}

func TestCompleteTaskIsIdempotent(t *testing.T) {
	exec, db := newTestExecutor(t)
	task, err := db.CreateTask("alice", "Ship it", nil)
	require.NoError(t, err)

	args := map[string]any{"task_id": "1"}
	first := resultMap(t, exec.Execute("complete_task", "alice", args))
	require.NotContains(t, first, "error")
	assert.Equal(t, true, first["completed"])

	second := resultMap(t, exec.Execute("complete_task", "alice", args))
	require.NotContains(t, second, "error")
	assert.Equal(t, true, second["completed"])

	reloaded, err := db.GetTask(task.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Completed)
}

func TestDeleteTask(t *testing.T) {
	exec, db := newTestExecutor(t)
	task, err := db.CreateTask("alice", "Ephemeral", nil)
	require.NoError(t, err)

	res := resultMap(t, exec.Execute("delete_task", "alice", map[string]any{"task_id": "1"}))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "Task deleted successfully", res["message"])

	gone, err := db.GetTask(task.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	res = resultMap(t, exec.Execute("delete_task", "alice", map[string]any{"task_id": "1"}))
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "Task not found", res["error"])

	res = resultMap(t, exec.Execute("delete_task", "alice", map[string]any{"task_id": "oops"}))
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "Invalid task ID format: oops. ID must be a number.", res["error"])
}

func TestSearchTasksScopedToCaller(t *testing.T) {
	exec, db := newTestExecutor(t)
	_, err := db.CreateTask("alice", "Water the PLANTS", nil)
	require.NoError(t, err)
	_, err = db.CreateTask("bob", "water plants too", nil)
	require.NoError(t, err)

	found, ok := exec.Execute("search_tasks", "alice", map[string]any{"query": "plants"}).([]any)
	require.True(t, ok)
	require.Len(t, found, 1)
	assert.Equal(t, "Water the PLANTS", resultMap(t, found[0])["title"])

	empty, ok := exec.Execute("search_tasks", "alice", map[string]any{"query": "zzz"}).([]any)
	require.True(t, ok)
	assert.Empty(t, empty)
}

func TestGetUserInfo(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := resultMap(t, exec.Execute("get_user_info", "alice", nil))
	assert.Equal(t, "alice", res["id"])
	assert.Equal(t, "alice@example.com", res["email"])

	res = resultMap(t, exec.Execute("get_user_info", "ghost", nil))
	assert.Equal(t, "User not found", res["error"])
}

func TestAddTaskRequiresTitle(t *testing.T) {
	exec, _ := newTestExecutor(t)
	res := resultMap(t, exec.Execute("add_task", "alice", map[string]any{}))
	assert.Contains(t, res["error"], "title")
}
