package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/api"
	"github.com/ddx-dashboard/backend/internal/api/handlers"
	"github.com/ddx-dashboard/backend/internal/cache/redis"
	"github.com/ddx-dashboard/backend/internal/dashboard"
	"github.com/ddx-dashboard/backend/internal/metrics"
	"github.com/ddx-dashboard/backend/internal/storage/postgres"
	"github.com/ddx-dashboard/backend/internal/storage/sqlite"
	"github.com/ddx-dashboard/backend/pkg/config"
	appLogger "github.com/ddx-dashboard/backend/pkg/logger"
)

// store is what the API needs from either storage backend.
type store interface {
	dashboard.Source
	handlers.Pinger
	InitSchema(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DDx dashboard API server", zap.String("storage", cfg.Storage.Driver))

	if cfg.Auth.JWTSigningKey == "" && !cfg.Server.Development {
		appLogger.Fatal("auth.jwtSigningKey is required outside development")
	}

	metrics.Init()

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	ready := map[string]handlers.Pinger{"store": db}

	var cache dashboard.ReportCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		cache = redisClient
		ready["cache"] = redisClient
	}

	service := dashboard.NewService(db, cache, cfg.Analytics)

	server := api.NewServer(cfg, api.Dependencies{
		Reports: service,
		Ready:   ready,
	})

	addr := cfg.Server.Addr()
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := server.Shutdown(); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		client, err := postgres.NewClient(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		client, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
