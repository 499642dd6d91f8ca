package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/authz"
	"github.com/iliyamo/medconcierge/internal/cache"
	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/database"
	"github.com/iliyamo/medconcierge/internal/handler"
	"github.com/iliyamo/medconcierge/internal/logger"
	"github.com/iliyamo/medconcierge/internal/middleware"
	"github.com/iliyamo/medconcierge/internal/queue"
	"github.com/iliyamo/medconcierge/internal/repository"
	"github.com/iliyamo/medconcierge/internal/router"
	"github.com/iliyamo/medconcierge/internal/seed"
	"github.com/iliyamo/medconcierge/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	store := repository.NewStore(db)
	if cfg.SeedOnStart {
		cat, err := seed.Default()
		if err != nil {
			return err
		}
		if err := seed.Run(ctx, store.Queries, cat, cfg.Admin, cfg.BcryptCost, log.Named("seed")); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable, rate limits and caches disabled")
	} else {
		defer rdb.Close()
	}

	publisher := queue.NewPublisher(cfg.AMQPURL, log)
	defer publisher.Close()

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return err
	}

	var chatCache service.ChatCache
	if rdb != nil {
		chatCache = cache.NewChatCache(rdb, cfg.Chat)
	}

	intake := service.NewIntakeService(store, publisher, log, cfg.BcryptCost)
	apps := service.NewApplicationService(store, store.Queries, publisher, log)
	chat := service.NewChatService(store.Queries, chatCache, log)
	passwords := service.NewPasswordService(store.Queries, store, publisher, log, cfg.ResetCodeTTL, cfg.BcryptCost)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Observe(log))

	router.Register(e, router.Handlers{
		Auth:         handler.NewAuthHandler(cfg, store.Queries, passwords, log),
		Applications: handler.NewApplicationHandler(intake, apps, log),
		Messages:     handler.NewMessageHandler(chat, log),
		Reference:    handler.NewReferenceHandler(store.Queries, log),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Enforcer:  enforcer,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
		DB:        db,
		Log:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", ":"+cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
