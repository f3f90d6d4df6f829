package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tasknest.io/tasknest/internal/config"
	"tasknest.io/tasknest/internal/core"
	"tasknest.io/tasknest/internal/store"
)

type stubLLM struct {
	text string
}

func (s *stubLLM) ChatWithTools(context.Context, *core.ChatRequest) (*core.ChatResponse, error) {
	return &core.ChatResponse{Text: s.text}, nil
}

func newTestServer(t *testing.T, chatLimit int) http.Handler {
	t.Helper()
	config.AppConfig.JWTSecret = "test-secret"

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	executor, err := core.NewExecutor(db)
	require.NoError(t, err)

	agent := core.NewAgentService(db, &stubLLM{text: "stub reply"}, executor, 2)
	limiter := core.NewFixedWindowLimiter(chatLimit, time.Hour)

	return NewRouter(NewAPIHandler(db, agent, limiter))
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func signup(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestSignupSigninMe(t *testing.T) {
	router := newTestServer(t, 100)

	token := signup(t, router, "alice@example.com")

	// Duplicate signup is rejected.
	rec := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "password": "hunter2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Wrong password.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct password.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": "alice@example.com", "password": "hunter2",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me["email"])
	assert.Equal(t, true, me["is_authenticated"])
}

func TestSessionHandler(t *testing.T) {
	router := newTestServer(t, 100)

	rec := doJSON(t, router, http.MethodGet, "/api/auth/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var anon map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anon))
	assert.Nil(t, anon["session"])
	assert.Nil(t, anon["user"])

	token := signup(t, router, "alice@example.com")
	rec = doJSON(t, router, http.MethodGet, "/api/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var authed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authed))
	assert.NotNil(t, authed["session"])
}

func TestTaskCRUDAndOwnership(t *testing.T) {
	router := newTestServer(t, 100)
	alice := signup(t, router, "alice@example.com")
	bob := signup(t, router, "bob@example.com")

	// Unauthenticated access is refused.
	rec := doJSON(t, router, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Create.
	rec = doJSON(t, router, http.MethodPost, "/api/tasks", alice, map[string]any{"title": "Buy milk"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task store.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))

	// Validation.
	rec = doJSON(t, router, http.MethodPost, "/api/tasks", alice, map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	taskPath := fmt.Sprintf("/api/tasks/%d", task.ID)

	// Foreign access surfaces as not found, never forbidden.
	rec = doJSON(t, router, http.MethodGet, taskPath, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, router, http.MethodDelete, taskPath, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Update.
	rec = doJSON(t, router, http.MethodPut, taskPath, alice, map[string]any{"title": "Buy oat milk"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Toggle complete.
	rec = doJSON(t, router, http.MethodPatch, taskPath+"/complete", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.True(t, task.Completed)

	// List with filter.
	rec = doJSON(t, router, http.MethodGet, "/api/tasks?status=completed", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []store.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy oat milk", tasks[0].Title)

	// Delete.
	rec = doJSON(t, router, http.MethodDelete, taskPath, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, http.MethodGet, taskPath, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	router := newTestServer(t, 100)
	token := signup(t, router, "alice@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/chat", "", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/chat", token, map[string]any{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/chat", token, map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result core.ChatResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "stub reply", result.Response)
	assert.NotZero(t, result.ConversationID)
	assert.NotNil(t, result.ToolCalls)

	// Follow-up in the same conversation.
	rec = doJSON(t, router, http.MethodPost, "/api/chat", token, map[string]any{
		"message":         "again",
		"conversation_id": result.ConversationID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second core.ChatResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, result.ConversationID, second.ConversationID)
}

func TestChatRateLimited(t *testing.T) {
	router := newTestServer(t, 1)
	token := signup(t, router, "alice@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/chat", token, map[string]any{"message": "one"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/chat", token, map[string]any{"message": "two"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
