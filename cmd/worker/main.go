package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/logger"
	"github.com/iliyamo/medconcierge/internal/notify"
	"github.com/iliyamo/medconcierge/internal/queue"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadWorker()

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := queue.NewEventLog(cfg.EventLogDir)
	c := queue.NewConsumer(cfg.AMQPURL, log)
	c.Handle(queue.EventsQueue, events.Handle)
	c.Handle(queue.SMSQueue, notify.SMSHandler(notify.NewSender(cfg.Twilio, log), log.Named("sms")))

	log.Info("worker started", zap.String("event_log", events.Path()))
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("worker stopped", zap.Error(err))
	}
	log.Info("worker stopped")
}
