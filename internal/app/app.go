package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/order"
	"github.com/xenking/freshcart/internal/handler"
	"github.com/xenking/freshcart/internal/notify"
	"github.com/xenking/freshcart/internal/notify/kafka"
	"github.com/xenking/freshcart/pkg/health"
	"github.com/xenking/freshcart/pkg/httpmiddleware"
)

const serviceName = "freshcart-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the API server.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("timezone", cfg.Location().String()),
	)

	be, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	// Health check service.
	healthSvc := health.New()
	if be.ping != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(be.ping))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Order events go to Kafka when brokers are configured. The producer
	// outlives ctx so that events published while draining are flushed.
	var publisher order.Publisher = order.LogPublisher{}
	var producer *kafka.Producer
	producerCtx, stopProducer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopProducer()
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Buffer)
		producer.Start(producerCtx)
		publisher = notify.NewPublisher(producer, serviceName)
		lg.Info("Publishing order events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Domain services.
	cartService := cart.NewService(be.carts, be.products, be.coupons, be.tx)
	couponService := coupon.NewService(be.coupons, be.products, be.tx)
	orderService := order.NewService(be.orders, be.carts, be.coupons, be.consumers, publisher, be.tx,
		order.WithLocation(cfg.Location()),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	authn := auth.NewAuthenticator(be.apikeys, []byte(cfg.APIKeyPepper))

	// HTTP handlers. Rate limiting is keyed by the authenticated consumer.
	h := handler.NewHandler(cartService, couponService, orderService, authn)
	api := otelhttp.NewHandler(
		h.Routes(httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: handler.ConsumerKey,
		})),
		serviceName,
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", api)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.LogRequests(),
		),
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()

		if producer != nil {
			stopProducer()
			producer.WaitClosed()
			lg.Info("Order event producer closed")
		}
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
