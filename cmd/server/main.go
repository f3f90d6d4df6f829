package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"tasknest.io/tasknest/internal/api"
	"tasknest.io/tasknest/internal/config"
	"tasknest.io/tasknest/internal/core"
	"tasknest.io/tasknest/internal/logging"
	"tasknest.io/tasknest/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.Logger = logging.New("tasknest", config.AppConfig.LogLevel)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	// Initialize tool executor; fails fast if the tool catalog and the
	// handler table have drifted.
	executor, err := core.NewExecutor(dbStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tool executor")
	}

	// Initialize agent service
	agentService := core.NewAgentService(dbStore, llmService, executor, config.AppConfig.MaxToolRounds)

	// Per-user chat rate limiting
	rateLimiter := core.NewFixedWindowLimiter(config.AppConfig.ChatRateLimit, config.AppConfig.ChatRateWindow)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(dbStore, agentService, rateLimiter)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second, // Adjusted for potentially slower LLM handshakes
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received
	log.Info().Msg("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting gracefully")
}
