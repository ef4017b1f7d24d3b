package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sketchsync/sketchsync/internal/api"
	"github.com/sketchsync/sketchsync/internal/auth"
	"github.com/sketchsync/sketchsync/internal/config"
	"github.com/sketchsync/sketchsync/internal/room"
	"github.com/sketchsync/sketchsync/internal/store"
	"github.com/sketchsync/sketchsync/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Data store: PostgreSQL when configured, SQLite otherwise
	var data store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		data = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sq, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		data = sq
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer data.Close()

	// Token store: Redis when configured, in-memory otherwise
	var tokens store.TokenStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		tokens = rs
		redisClient = rs.Client()
		logger.Info().Msg("connected to Redis")
	} else {
		tokens = store.NewMemoryTokenStore()
		logger.Info().Msg("using in-memory token store")
	}
	defer tokens.Close()

	authSvc := auth.NewService(data, tokens, cfg.SessionTTL, cfg.GuestTTL)
	registry := room.NewRegistry(data, logger)
	wsHandler := ws.NewHandler(registry, authSvc, data, logger)

	router := api.NewRouter(logger, data, tokens, authSvc, wsHandler, redisClient)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Websocket connections outlive the write timeout; chi serves them
	// on hijacked connections so the server timeouts do not apply.
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting SketchSync server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Park every live board before exiting
	registry.Shutdown()

	logger.Info().Msg("server stopped")
}
