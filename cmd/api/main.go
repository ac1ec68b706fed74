package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/cjs-api/internal/api/http"
	"github.com/spec-kit/cjs-api/internal/api/http/handlers"
	"github.com/spec-kit/cjs-api/internal/auth"
	"github.com/spec-kit/cjs-api/internal/config"
	"github.com/spec-kit/cjs-api/internal/events"
	"github.com/spec-kit/cjs-api/internal/observability"
	"github.com/spec-kit/cjs-api/internal/persistence"
	"github.com/spec-kit/cjs-api/internal/repository"
	"github.com/spec-kit/cjs-api/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userRepo, closeStore, err := openUserStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open user store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	metrics := observability.NewMetrics()
	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:   userRepo,
		Codec:      auth.NewBcryptCodec(cfg.Auth.BcryptCost),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"store": userRepo,
	})
	usersHandler := handlers.NewUsersHandler(authService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    healthHandler,
		Users:     usersHandler,
		Metrics:   metrics,
		RateLimit: cfg.RateLimit,
	})

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("store", cfg.Store.Driver),
			zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// openUserStore builds the repository selected by STORE_DRIVER and returns a
// release func for its connections.
func openUserStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.UserRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if pg.PoolHandle() == nil {
			return nil, nil, errors.New("postgres driver selected but POSTGRES_DSN is empty")
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return repository.NewUserRepository(pg.PoolHandle()), pg.Close, nil

	case config.StoreDriverSQLite:
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteUserRepository(db.DB), db.Close, nil

	case config.StoreDriverRedis:
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		return repository.NewRedisUserRepository(rdb.Client, rdb.KeyPrefix), rdb.Close, nil

	case config.StoreDriverMemory:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
