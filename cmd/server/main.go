package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/config"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/database"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/handlers"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/middleware"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/repositories"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/services"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/sync"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	if err := database.Migrate(ctx, postgresPool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// Wire the sync subsystem
	operationRepo := repositories.NewPostgresOperationRepository(postgresPool)
	conflictRepo := repositories.NewPostgresConflictRepository(postgresPool)
	stateRepo := repositories.NewRedisSyncStateRepository(redisClient)
	remoteClient := remote.NewHTTPClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)

	orchestrator := sync.NewOrchestrator(operationRepo, conflictRepo, stateRepo, remoteClient, sync.Config{
		BatchSize: cfg.SyncBatchSize,
		Workers:   cfg.SyncWorkers,
	}, logger)

	syncService := services.NewSyncService(
		operationRepo, conflictRepo, stateRepo, remoteClient,
		orchestrator, cfg.AutoSyncInterval, logger,
	)

	if cfg.AutoSyncEnabled {
		if err := syncService.SetAutoSync(true); err != nil {
			log.Fatalf("Failed to enable auto sync: %v", err)
		}
	}
	defer orchestrator.DisableAutoSync()

	// Initialize HTTP Server
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	syncHandler := handlers.NewSyncHandler(syncService, logger)
	router.Mount("/api/sync", syncHandler.Routes(middleware.Authenticate(cfg.JWTSecret)))

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
