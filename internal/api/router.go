// Package api assembles the HTTP surface: REST routes, the websocket
// room endpoint, and the middleware stack around them.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sketchsync/sketchsync/internal/api/middleware"
	"github.com/sketchsync/sketchsync/internal/auth"
	"github.com/sketchsync/sketchsync/internal/handlers"
	"github.com/sketchsync/sketchsync/internal/store"
	"github.com/sketchsync/sketchsync/internal/ws"
)

// NewRouter creates and configures the HTTP router. redisClient may be
// nil, which disables rate limiting.
func NewRouter(
	logger zerolog.Logger,
	data store.DataStore,
	tokens store.TokenStore,
	authSvc *auth.Service,
	wsHandler *ws.Handler,
	redisClient *redis.Client,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(1024 * 1024)) // 1MB: shapes_update carries whole boards
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisClient, logger)
	r.Use(limiter.Middleware)

	// CORS - the drawing frontend may be served from another origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(authSvc, data, tokens)
	authMw := middleware.NewAuthMiddleware(authSvc)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/anonymous", h.Anonymous)

	// Room websocket: authenticates via token query parameter because
	// browser websocket clients cannot set headers.
	r.Get("/ws/rooms/{id}", wsHandler.ServeRoom)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(authMw.RequireAuth)

		r.Post("/auth/logout", h.Logout)
		r.Post("/rooms", h.CreateRoom)
		r.Get("/rooms", h.ListRooms)
		r.Get("/rooms/verify/{id}", h.VerifyRoom)
	})

	return r
}
