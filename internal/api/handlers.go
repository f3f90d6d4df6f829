package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"tasknest.io/tasknest/internal/auth"
	"tasknest.io/tasknest/internal/core"
	"tasknest.io/tasknest/internal/store"
)

type APIHandler struct {
	store        *store.SQLiteStore
	agentService *core.AgentService
	rateLimiter  core.RateLimiter
}

func NewAPIHandler(db *store.SQLiteStore, agent *core.AgentService, limiter core.RateLimiter) *APIHandler {
	return &APIHandler{
		store:        db,
		agentService: agent,
		rateLimiter:  limiter,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// The token issuer vouched for this identity; create the row on
		// first authenticated request if it is not here yet.
		user, err := h.store.GetOrCreateUser(claims.UserID, claims.Email, claims.Name)
		if err != nil {
			log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to resolve user identity")
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "user", user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type AuthCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	existing, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("Signup lookup failed")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "User already exists", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	name := req.Name
	if name == "" {
		name = strings.SplitN(req.Email, "@", 2)[0]
	}

	user := &store.User{
		ID:             uuid.NewString(),
		Email:          req.Email,
		Name:           name,
		HashedPassword: hashedPassword,
	}
	if err := h.store.CreateUser(user); err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("Failed to create user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, user.Name)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"user": user, "token": token})
}

func (h *APIHandler) SigninHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("Signin lookup failed")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.HashedPassword) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, user.Name)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"user": user, "token": token})
}

// SessionHandler answers session probes; anonymous callers get a null
// session rather than a 401.
func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		json.NewEncoder(w).Encode(map[string]any{"session": nil, "user": nil})
		return
	}

	claims, err := auth.ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		json.NewEncoder(w).Encode(map[string]any{"session": nil, "user": nil})
		return
	}

	user, err := h.store.GetOrCreateUser(claims.UserID, claims.Email, claims.Name)
	if err != nil {
		json.NewEncoder(w).Encode(map[string]any{"session": nil, "user": nil})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"session": map[string]any{
			"userId":    user.ID,
			"expiresAt": time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
		},
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value("user").(*store.User)
	json.NewEncoder(w).Encode(map[string]any{
		"user_id":          user.ID,
		"email":            user.Email,
		"name":             user.Name,
		"is_authenticated": true,
	})
}

// Task CRUD

type TaskCreateRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

type TaskUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

func validateTitle(title string) bool {
	return len(title) >= 1 && len(title) <= 200
}

func validateDescription(description *string) bool {
	return description == nil || len(*description) <= 1000
}

func (h *APIHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	status := r.URL.Query().Get("status")
	sort := r.URL.Query().Get("sort")

	tasks, err := h.store.ListTasks(userID, status, sort)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list tasks")
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	json.NewEncoder(w).Encode(tasks)
}

func (h *APIHandler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var req TaskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !validateTitle(req.Title) {
		http.Error(w, "Task title must be between 1 and 200 characters", http.StatusBadRequest)
		return
	}
	if !validateDescription(req.Description) {
		http.Error(w, "Task description must be less than 1000 characters", http.StatusBadRequest)
		return
	}

	task, err := h.store.CreateTask(userID, req.Title, req.Description)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create task")
		http.Error(w, "Failed to create task", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(task)
}

// loadOwnedTask resolves the path task for the requester. Missing and
// foreign tasks are both reported as not found so ids cannot be enumerated.
func (h *APIHandler) loadOwnedTask(w http.ResponseWriter, r *http.Request) *store.Task {
	userID := r.Context().Value("userID").(string)

	taskID, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return nil
	}

	task, err := h.store.GetTask(taskID)
	if err != nil {
		log.Error().Err(err).Int64("task_id", taskID).Msg("Failed to load task")
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return nil
	}
	if task == nil || task.UserID != userID {
		http.Error(w, "Task not found", http.StatusNotFound)
		return nil
	}
	return task
}

func (h *APIHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	task := h.loadOwnedTask(w, r)
	if task == nil {
		return
	}
	json.NewEncoder(w).Encode(task)
}

func (h *APIHandler) UpdateTaskHandler(w http.ResponseWriter, r *http.Request) {
	task := h.loadOwnedTask(w, r)
	if task == nil {
		return
	}

	var req TaskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Title != nil {
		if !validateTitle(*req.Title) {
			http.Error(w, "Task title must be between 1 and 200 characters", http.StatusBadRequest)
			return
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		if !validateDescription(req.Description) {
			http.Error(w, "Task description must be less than 1000 characters", http.StatusBadRequest)
			return
		}
		task.Description = req.Description
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}

	if err := h.store.UpdateTask(task); err != nil {
		log.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to update task")
		http.Error(w, "Failed to update task", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(task)
}

func (h *APIHandler) DeleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	task := h.loadOwnedTask(w, r)
	if task == nil {
		return
	}

	if err := h.store.DeleteTask(task.ID); err != nil {
		log.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to delete task")
		http.Error(w, "Failed to delete task", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ToggleTaskCompletionHandler(w http.ResponseWriter, r *http.Request) {
	task := h.loadOwnedTask(w, r)
	if task == nil {
		return
	}

	task.Completed = !task.Completed
	if err := h.store.UpdateTask(task); err != nil {
		log.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to toggle task completion")
		http.Error(w, "Failed to update task", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(task)
}

// Chat

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	if !h.rateLimiter.Allow(userID) {
		http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}

	result, err := h.agentService.ProcessMessage(r.Context(), userID, req.Message, req.ConversationID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error processing chat message")
		http.Error(w, "An error occurred while processing your message", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}
