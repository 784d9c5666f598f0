package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relicta-tech/notebase/internal/config"
	"github.com/relicta-tech/notebase/internal/httpserver/handlers"
	"github.com/relicta-tech/notebase/internal/httpserver/middleware"
)

// setupRouter configures the Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.SecurityHeaders())
	r.Use(s.corsMiddleware())
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	// Health and metrics (unauthenticated)
	r.Get("/health", handlers.Health)
	r.Get("/api/v1/health", handlers.Health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	editor := middleware.RequireRole(string(config.ServerRoleEditor))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(s.config.Auth))

		r.Get("/ws", s.handleWebSocket)

		r.Route("/trees/{kind}", func(r chi.Router) {
			r.Get("/", handlers.GetTree)
			r.Get("/children", handlers.GetChildren)
			r.Get("/nodes/{id}", handlers.GetNode)
			r.Get("/nodes/{id}/breadcrumb", handlers.GetBreadcrumb)

			r.Route("/categories", func(r chi.Router) {
				r.Use(editor)
				r.Post("/", handlers.CreateCategory)
				r.Put("/{id}/name", handlers.RenameCategory)
				r.Put("/{id}/parent", handlers.MoveCategory)
				r.Delete("/{id}", handlers.DeleteCategory)
			})
		})

		r.Route("/notes", func(r chi.Router) {
			r.Get("/", handlers.ListNotes)
			r.Get("/{id}", handlers.GetNote)
			r.Group(func(r chi.Router) {
				r.Use(editor)
				r.Post("/", handlers.CreateNote)
				r.Put("/{id}/title", handlers.RenameNote)
				r.Put("/{id}/category", handlers.MoveNote)
				r.Put("/{id}/content", handlers.UpdateNoteContent)
				r.Put("/{id}/pinned", handlers.PinNote)
				r.Delete("/{id}", handlers.DeleteNote)
			})
		})

		r.Route("/todos", func(r chi.Router) {
			r.Get("/", handlers.ListTodos)
			r.Get("/{id}", handlers.GetTodo)
			r.Group(func(r chi.Router) {
				r.Use(editor)
				r.Post("/", handlers.CreateTodo)
				r.Patch("/{id}", handlers.UpdateTodo)
				r.Post("/{id}/toggle", handlers.ToggleTodo)
				r.Post("/{id}/tags", handlers.AddTodoTag)
				r.Delete("/{id}/tags/{tag}", handlers.RemoveTodoTag)
				r.Put("/{id}/category", handlers.MoveTodo)
				r.Delete("/{id}", handlers.DeleteTodo)
			})
		})

		r.Get("/projections", handlers.GetProjections)
		r.Get("/history/{id}", handlers.GetHistory)
	})

	return r
}

// corsMiddleware returns configured CORS middleware. With no configured
// origins no CORS headers are sent.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowedOrigins := s.config.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// handleWebSocket handles WebSocket upgrade requests.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleConnection(w, r)
}
