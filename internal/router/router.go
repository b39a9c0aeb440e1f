package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/safar-labs/travelmate/internal/api/auth"
	"github.com/safar-labs/travelmate/internal/api/chat"
	"github.com/safar-labs/travelmate/internal/api/session"
)

// Config carries the handlers and middleware the router wires together.
type Config struct {
	AuthHandler            auth.Handler
	SessionHandler         session.Handler
	ChatHandler            chat.Handler
	AuthenticateMiddleware func(http.Handler) http.Handler
}

// SetupRouter builds the application router. Server-wide middleware
// (request ID, logger, recoverer) is applied before mounting this router
// in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes.
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/refresh", cfg.AuthHandler.RefreshToken)
		})

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Post("/auth/logout", cfg.AuthHandler.Logout)

			r.Post("/chat/sessions", cfg.SessionHandler.CreateSession)
			r.Get("/chat/sessions", cfg.SessionHandler.GetSessions)
			r.Put("/chat/sessions/{sessionID}", cfg.SessionHandler.RenameSession)
			r.Delete("/chat/sessions/{sessionID}", cfg.SessionHandler.DeactivateSession)

			r.Post("/chat/query/{sessionID}", cfg.ChatHandler.ProcessChatQuery)
			r.Get("/chat/history/{sessionID}", cfg.ChatHandler.GetChatHistory)
		})
	})

	return r
}
