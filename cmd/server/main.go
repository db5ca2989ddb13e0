package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/nexus-gateway/internal/auth"
	"github.com/Tyrowin/nexus-gateway/internal/chat"
	"github.com/Tyrowin/nexus-gateway/internal/gateway"
	"github.com/Tyrowin/nexus-gateway/internal/presence"
	"github.com/Tyrowin/nexus-gateway/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// presenceStore is a presence backend the process owns and must close.
type presenceStore interface {
	presence.Registry
	Close() error
}

func run() error {
	// 1. Configuration & Logger
	cfg, err := server.LoadConfig(".env")
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// 2. Presence backend
	registry, err := openPresence(cfg, log)
	if err != nil {
		return err
	}

	// 3. Chat database
	store, closeDB, err := openStore(cfg)
	if err != nil {
		_ = registry.Close()
		return err
	}

	// 4. Gateway, hub and HTTP server
	hub := server.NewHub(log)
	gw := gateway.New(gateway.Options{
		Log:         log,
		Verifier:    auth.NewJWTVerifier(auth.JWTConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}),
		Presence:    registry,
		Rooms:       store,
		Messages:    store,
		Broadcaster: hub,
		CallTimeout: cfg.CallTimeout,
	})
	srv := server.NewServer(cfg, hub, gw, gw.Directory().Len, log)
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	go hub.Run(context.Background())
	go func() {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped", "error", err)
			os.Exit(1)
		}
	}()

	// 5. Graceful shutdown: stop accepting, close the connections, then the stores
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"gateway": func(context.Context) error {
				if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
					log.Error("HTTP shutdown failed", "error", err)
				}
				if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
					log.Error("Hub shutdown failed", "error", err)
				}
				log.Info("Closing stores...")
				return errors.Join(registry.Close(), closeDB())
			},
		},
	)

	exitCode := <-wait
	log.Info("Gateway exited", "code", exitCode)
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with code %d", exitCode)
	}
	return nil
}

func openPresence(cfg server.Config, log *slog.Logger) (presenceStore, error) {
	switch cfg.PresenceBackend {
	case server.PresenceBackendBadger:
		db, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.ERROR))
		if err != nil {
			return nil, fmt.Errorf("presence database opening failed: %w", err)
		}
		log.Info("Presence backend ready", "backend", cfg.PresenceBackend, "path", cfg.BadgerPath)
		return presence.NewBadgerRegistry(db, cfg.PresencePrefix, cfg.PresenceTTL), nil
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		registry := presence.NewRedisRegistry(client, cfg.PresencePrefix, cfg.PresenceTTL)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
		defer cancel()
		if err := registry.Ping(ctx); err != nil {
			_ = registry.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("Presence backend ready", "backend", cfg.PresenceBackend, "addr", cfg.RedisAddr)
		return registry, nil
	}
}

func openStore(cfg server.Config) (*chat.Store, func() error, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	store := chat.NewStore(db, cfg.DefaultRoomName)
	if err := store.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return store, sqlDB.Close, nil
}
