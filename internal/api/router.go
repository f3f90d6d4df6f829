package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes live under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/signup", apiHandler.SignupHandler)
		r.Post("/auth/signin", apiHandler.SigninHandler)
		r.Get("/auth/session", apiHandler.SessionHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/auth/me", apiHandler.MeHandler)

			// Task routes
			r.Get("/tasks", apiHandler.ListTasksHandler)
			r.Post("/tasks", apiHandler.CreateTaskHandler)
			r.Get("/tasks/{taskID}", apiHandler.GetTaskHandler)
			r.Put("/tasks/{taskID}", apiHandler.UpdateTaskHandler)
			r.Delete("/tasks/{taskID}", apiHandler.DeleteTaskHandler)
			r.Patch("/tasks/{taskID}/complete", apiHandler.ToggleTaskCompletionHandler)

			// Assistant route
			r.Post("/chat", apiHandler.ChatHandler)
		})
	})

	return r
}
