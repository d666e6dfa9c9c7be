package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/llm-bridge/app"
	"github.com/upb/llm-bridge/handlers"
	"github.com/upb/llm-bridge/middleware"
	"github.com/upb/llm-bridge/utils"
)

// SetupRoutes configures all application routes and middleware. No request
// timeout middleware is installed: streamed completions are bounded by the
// per-attempt runner timeout instead.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	inferenceHandler := handlers.NewInferenceHandler(deps.Inference, deps.Logger)
	modelsHandler := handlers.NewModelsHandler(deps.Routing, deps.Logger)
	wsHandler := handlers.NewWebSocketHandler(deps.Inference, deps.Config.Server.AllowedOrigins, deps.Logger)

	// OpenAI-compatible API (requires authentication)
	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Post("/chat/completions", inferenceHandler.HandleChatCompletion)
		r.Get("/models", modelsHandler.HandleListModels)
		r.Get("/ws", wsHandler.HandleWebSocket)
	})

	if deps.Prometheus != nil {
		r.Handle("/metrics", deps.Prometheus.Handler())
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
