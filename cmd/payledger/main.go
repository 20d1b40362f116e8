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

	"payledger/internal/authclient"
	"payledger/internal/common/database"
	"payledger/internal/common/middleware"
	"payledger/internal/common/nats"
	"payledger/internal/history"
	"payledger/internal/ledger"
	ledgerapi "payledger/internal/ledger/api"
	"payledger/internal/payment"
	paymentapi "payledger/internal/payment/api"
	"payledger/internal/withdrawal"
	withdrawalapi "payledger/internal/withdrawal/api"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	ReconInterval time.Duration `envconfig:"RECON_INTERVAL" default:"5m"`

	Database   database.Config
	NATS       nats.Config
	Auth       authclient.Config
	Payment    payment.Config
	Withdrawal withdrawal.Config
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(cfg.Database.URL, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// NATS
	natsClient, err := nats.New(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	if _, err := natsClient.EnsureStream(ctx, nats.DefaultStreamConfig("PAYLEDGER", []string{
		"payment.>", "ledger.>", "withdrawal.>",
	})); err != nil {
		logger.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}
	publisher := nats.NewPublisher(natsClient, logger)

	// Services
	ledgerService := ledger.NewService(ledger.NewPostgresStore(db), publisher, cfg.Payment.Currency, logger)
	paymentService := payment.NewService(payment.NewPostgresStore(db), ledgerService, publisher, cfg.Payment, logger)
	withdrawalService := withdrawal.NewService(withdrawal.NewPostgresStore(db), ledgerService, publisher, cfg.Withdrawal, logger)
	historyService := history.NewService(paymentService, withdrawalService)

	authClient := authclient.NewClient(cfg.Auth, logger)
	verifier := payment.NewSignatureVerifier(cfg.Payment.CallbackSecret)

	// Replay any credits lost to a crash between settlement and ledger
	// write, then keep sweeping in the background.
	if credited, err := paymentService.ReconcileCredits(ctx); err != nil {
		logger.Error("startup reconciliation failed", "error", err)
	} else if credited > 0 {
		logger.Info("startup reconciliation applied credits", "count", credited)
	}
	go reconcileLoop(ctx, paymentService, cfg.ReconInterval, logger)

	// Handlers
	paymentHandler := paymentapi.NewHandler(paymentService)
	webhookHandler := payment.NewWebhookHandler(paymentService, verifier, logger)
	ledgerHandler := ledgerapi.NewHandler(ledgerService)
	withdrawalHandler := withdrawalapi.NewHandler(withdrawalService)
	historyHandler := history.NewHandler(historyService)

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		if err := natsClient.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// The gateway authenticates with a payload signature, not a bearer
	// token, so the webhook sits outside the identity middleware.
	r.Post("/api/v1/webhooks/payment", webhookHandler.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(authClient.Verify))

		r.Mount("/payments", paymentHandler.Routes())
		r.Mount("/withdrawals", withdrawalHandler.Routes())
		r.Mount("/balance", ledgerHandler.Routes())
		r.Mount("/history", historyHandler.Routes())
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting payledger service",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// reconcileLoop periodically replays missing ledger credits.
func reconcileLoop(ctx context.Context, svc *payment.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			credited, err := svc.ReconcileCredits(ctx)
			if err != nil {
				logger.Error("periodic reconciliation failed", "error", err)
				continue
			}
			if credited > 0 {
				logger.Info("periodic reconciliation applied credits", "count", credited)
			}
		}
	}
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
