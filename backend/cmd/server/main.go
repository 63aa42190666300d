package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mimic-ai/backend/internal/api"
	"mimic-ai/backend/internal/graph"
	"mimic-ai/backend/internal/ingest"
	"mimic-ai/backend/pkg/config"
	"mimic-ai/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	// Initialize Neo4j driver
	ctx := context.Background()
	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	store := graph.NewNeo4jStore(driver, cfg.Neo4jDatabase)
	defer store.Close(context.Background())

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to create graph schema", zap.Error(err))
	}

	// Initialize dependencies
	coordinator := ingest.NewCoordinator(store, ingest.OptionsFromConfig(cfg)...)
	log.Info("Topic extraction configured",
		zap.Bool("llm", cfg.LLMEnabled()),
		zap.String("model", cfg.ModelID),
		zap.Int("min_messages", cfg.TopicMinMessages),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewServer(coordinator, store, cfg.MaxUploadBytes()).Router()

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Uploads can take a while to ingest
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
