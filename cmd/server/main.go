package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/aftabansari2005/client-ecommerce/internal/cache"
	"github.com/aftabansari2005/client-ecommerce/internal/catalog"
	"github.com/aftabansari2005/client-ecommerce/internal/checkout"
	"github.com/aftabansari2005/client-ecommerce/internal/config"
	"github.com/aftabansari2005/client-ecommerce/internal/inventory"
	"github.com/aftabansari2005/client-ecommerce/internal/messaging"
	"github.com/aftabansari2005/client-ecommerce/internal/orders"
	"github.com/aftabansari2005/client-ecommerce/internal/payment"
	"github.com/aftabansari2005/client-ecommerce/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}
	if cfg.StripeAPIKey == "" || cfg.StripeWebhookSecret == "" {
		logger.Error("STRIPE_API_KEY and STRIPE_WEBHOOK_SECRET environment variables are required")
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	opts := []checkout.CoordinatorOption{
		checkout.WithLedgerTimeout(cfg.LedgerTimeout),
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderPlaced)
		defer func() { _ = producer.Close() }()
		opts = append(opts, checkout.WithReceiptPublisher(producer))
	}

	if cfg.RedisAddr != "" {
		dedup := cache.NewEventDedup(cfg.RedisAddr)
		defer func() { _ = dedup.Close() }()
		opts = append(opts, checkout.WithEventDedup(dedup))
	}

	store := orders.NewStoreRepository(db)
	coordinator := checkout.NewCoordinator(
		inventory.NewLedgerRepository(db),
		store,
		catalog.NewRepository(db),
		payment.NewStripeGateway(cfg.StripeAPIKey, cfg.StripeWebhookSecret),
		cfg.Currency,
		logger,
		opts...,
	)
	handler := checkout.NewHandler(coordinator, store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(handler.HandleCheckout))
	mux.HandleFunc("POST /orders/{id}/payment-intent", telemetry.WithHTTPRoute(handler.HandleRetryPaymentIntent))
	mux.HandleFunc("POST /payments/webhook", telemetry.WithHTTPRoute(handler.HandleWebhook))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}", telemetry.WithHTTPRoute(handler.HandleUpdate))
	mux.HandleFunc("DELETE /orders/{id}", telemetry.WithHTTPRoute(handler.HandleDelete))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: otelhttp.NewHandler(mux, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
