package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/freshcart/internal/notify"
	"github.com/xenking/freshcart/internal/notify/kafka"
	"github.com/xenking/freshcart/pkg/health"
)

const notifierName = "freshcart-notifier"

// RunNotifier consumes order confirmed events and mails the consumer. Events
// already delivered are skipped using Redis.
func RunNotifier(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required: set FRESH_KAFKA_BROKERS")
	}
	lg.Info("Initializing",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.Group),
		zap.Int("workers", cfg.Kafka.Workers),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Error("Close redis", zap.Error(err))
		}
	}()

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.Mail.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	} else {
		lg.Warn("No SMTP host configured, confirmation mail is only logged")
	}
	n := notify.NewNotifier(mailer, notify.NewRedisDeduper(rdb, cfg.Redis.DedupTTL), notifierName)

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(1000))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	server := &http.Server{
		Addr:              cfg.Notifier.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group, cfg.Kafka.Topic, cfg.Kafka.Workers)
	healthSvc.SetReady(true)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
			return n.Handle(ctx, m.Value)
		})
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		lg.Info("Shutting down notifier", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
