// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ugoite/ugoite/internal/api"
	"github.com/ugoite/ugoite/internal/audit"
	"github.com/ugoite/ugoite/internal/auth"
	"github.com/ugoite/ugoite/internal/config"
	"github.com/ugoite/ugoite/internal/middleware"
	"github.com/ugoite/ugoite/internal/storage"
	"github.com/ugoite/ugoite/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Ugoite API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "ugoite-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		Protocol:     cfg.TracingProtocol,
		Endpoint:     cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	op, err := storage.Open(cfg.StorageURI, storage.Options{
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3Region:          cfg.S3Region,
	})
	if err != nil {
		logger.Error("failed to open storage backend", "error", err)
		os.Exit(1)
	}

	// Metrics registry shared by every subsystem.
	registry := prometheus.NewRegistry()

	auditMetrics := audit.NewMetrics()
	if err := auditMetrics.Register(registry); err != nil {
		logger.Error("failed to register audit metrics", "error", err)
		os.Exit(1)
	}
	authMetrics := auth.NewMetrics()
	if err := authMetrics.Register(registry); err != nil {
		logger.Error("failed to register auth metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	ledger := audit.NewLedger(op, audit.LedgerConfig{
		DefaultRetention: cfg.AuditRetentionMaxEvents,
		Metrics:          auditMetrics,
	})

	authCfg := auth.Config{
		BearerTokensJSON: cfg.AuthBearerTokens,
		APIKeysJSON:      cfg.AuthAPIKeys,
		SigningSecrets:   cfg.AuthBearerSecrets,
		ActiveKIDs:       cfg.AuthActiveKIDs,
		RevokedKeyIDs:    cfg.AuthRevokedKeyIDs,
		BootstrapToken:   cfg.AuthBootstrapToken,
		BootstrapUserID:  cfg.AuthBootstrapUserID,
	}
	engine := auth.NewEngine(auth.NewStore(authCfg), authMetrics)

	auditHandlers := api.NewAuditHandlers(ledger)
	authHandlers := api.NewAuthHandlers(authCfg)
	healthHandlers := api.NewHealthHandlers(op)

	// Every route under /v1/ requires authentication.
	requireAuth := middleware.Authenticate(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/v1/auth/whoami", requireAuth(http.HandlerFunc(authHandlers.WhoAmI)))
	mux.Handle("/v1/auth/capabilities", requireAuth(http.HandlerFunc(authHandlers.Capabilities)))
	mux.Handle("/v1/spaces/", requireAuth(http.HandlerFunc(auditHandlers.HandleSpaces)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"ugoite-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics
	handler := middleware.RequestID(
		middleware.Tracing("ugoite-api")(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(mux))))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down tracer provider", "error", err)
	}

	logger.Info("server stopped")
}
