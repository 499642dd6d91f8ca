package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/database"
	"github.com/iliyamo/medconcierge/internal/logger"
	"github.com/iliyamo/medconcierge/internal/repository"
	"github.com/iliyamo/medconcierge/internal/seed"
)

// seed applies migrations, then loads the reference catalog and the
// bootstrap admin. Safe to run repeatedly.
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

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	cat, err := seed.Default()
	if err != nil {
		log.Fatal("load catalog", zap.Error(err))
	}
	if err := seed.Run(ctx, repository.New(db), cat, cfg.Admin, cfg.BcryptCost, log); err != nil {
		log.Fatal("seed", zap.Error(err))
	}
	log.Info("seed complete")
}
