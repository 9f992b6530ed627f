package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"bundlemart/internal/common/database"
	"bundlemart/internal/common/middleware"
	natsclient "bundlemart/internal/common/nats"
	"bundlemart/internal/fees"
	"bundlemart/internal/fulfillment"
	"bundlemart/internal/gateway"
	"bundlemart/internal/order"
	"bundlemart/internal/payments"
	"bundlemart/internal/recon"
	"bundlemart/internal/refgen"
	"bundlemart/internal/transaction"
	"bundlemart/internal/wallet"
	"bundlemart/internal/withdrawal"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	OutboxInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`

	Database database.Config
	NATS     natsclient.Config
	Fees     fees.Config
	Gateway  gateway.Config
	Supplier fulfillment.SupplierConfig
	Recon    recon.Config
	Sweep    recon.SweepConfig
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Migrate and connect to database
	if err := database.Migrate(cfg.Database.URL, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS and ensure the fulfillment stream/consumer
	nc, err := natsclient.New(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	if _, err := nc.EnsureStream(ctx, natsclient.DefaultStreamConfig("ORDERS", []string{"orders.>"})); err != nil {
		logger.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}
	consumer, err := nc.EnsureConsumer(ctx, natsclient.DefaultConsumerConfig("fulfillment-worker", "ORDERS", fulfillment.Subject))
	if err != nil {
		logger.Error("failed to ensure consumer", "error", err)
		os.Exit(1)
	}

	// Stores
	walletStore := wallet.NewStore(db)
	transactionStore := transaction.NewStore(db)
	orderStore := order.NewStore(db)
	outbox := fulfillment.NewOutbox(db)
	refs := refgen.New()

	// Services
	schedule := fees.NewSchedule(cfg.Fees)
	gatewayClient := gateway.NewClient(cfg.Gateway)
	catalog := payments.NewPostgresCatalog(db)

	paymentsStore := payments.NewPostgresStore(db, walletStore, transactionStore, orderStore, outbox)
	paymentsService := payments.NewService(schedule, refs, paymentsStore, catalog, gatewayClient, logger)

	reconStore := recon.NewPostgresStore(db, walletStore, transactionStore, orderStore, outbox)
	notifier := recon.NewNATSNotifier(nc, logger)
	reconService := recon.NewService(cfg.Recon, reconStore, notifier, gateway.VerifySignature, logger)

	withdrawalStore := withdrawal.NewStore(db, walletStore, transactionStore, refs)

	// Background workers
	dispatcher := fulfillment.NewDispatcher(outbox, nc, logger, cfg.OutboxInterval, cfg.OutboxBatchSize)
	go dispatcher.Run(ctx)

	sweeper := recon.NewSweeper(cfg.Sweep, reconService, transactionStore, gatewayClient, logger)
	go sweeper.Run(ctx)

	supplier := fulfillment.NewSupplierClient(cfg.Supplier)
	worker := fulfillment.NewWorker(supplier, orderStore, logger)
	subscriber := natsclient.NewSubscriber(consumer, logger)
	go func() {
		if err := subscriber.Start(ctx, worker.Handle); err != nil && ctx.Err() == nil {
			logger.Error("fulfillment subscriber stopped", "error", err)
			cancel()
		}
	}()

	// Handlers
	paymentsHandler := payments.NewHandler(paymentsService, logger)
	webhookHandler := recon.NewWebhookHandler(reconService, logger)
	withdrawalHandler := withdrawal.NewHandler(withdrawalStore, logger)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Actor)
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		if err := nc.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		paymentsHandler.Register(r)
		r.Method(http.MethodPost, "/webhooks/gateway", webhookHandler)
		r.Mount("/withdrawals", withdrawalHandler.Routes())
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting payment engine",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
