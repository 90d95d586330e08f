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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/urlsafety/batch-predictor/internal/config"
	"github.com/urlsafety/batch-predictor/internal/handlers"
	"github.com/urlsafety/batch-predictor/internal/predict"
	"github.com/urlsafety/batch-predictor/internal/ratelimit"
	"github.com/urlsafety/batch-predictor/internal/server"
	apptls "github.com/urlsafety/batch-predictor/internal/tls"
	"github.com/urlsafety/batch-predictor/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context(), cfg)
	},
}

func runServe(parent context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := server.SetupLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := predict.NewClient(cfg.Endpoint, cfg.Timeout, logger)
	limiter := ratelimit.New(buckets(cfg))

	go server.RunWithRecovery(ctx, logger, "ratelimit-cleanup", limiter.CleanupLoop)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, client, limiter, logger),
		ReadHeaderTimeout: 15 * time.Second,
		// The submit handler blocks on the remote call.
		WriteTimeout: cfg.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serve := srv.ListenAndServe
	if len(cfg.TLSDomains) > 0 {
		cm, err := apptls.NewCertManager(cfg.TLSDomains, cfg.ACMEEmail, cfg.Production, logger)
		if err != nil {
			return err
		}
		if serve, err = cm.Prepare(ctx, srv); err != nil {
			return err
		}
	}

	logger.Info("prediction endpoint configured", "endpoint", client.Endpoint(), "timeout", cfg.Timeout)
	if err := server.Serve(ctx, logger, srv, serve); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func buckets(cfg config.Config) map[string]ratelimit.Bucket {
	return map[string]ratelimit.Bucket{
		ratelimit.BucketSubmit: {MaxRequests: cfg.SubmitsPerMin, Window: time.Minute},
		ratelimit.BucketAPI:    {MaxRequests: cfg.SubmitsPerMin, Window: time.Minute},
	}
}

func newRouter(cfg config.Config, submitter predict.Submitter, limiter *ratelimit.Limiter, logger *slog.Logger) http.Handler {
	uiHandler := handlers.NewUIHandler(submitter, limiter, cfg.MaxUploadBytes, logger)
	apiHandler := handlers.NewAPIHandler(submitter, limiter, cfg.MaxUploadBytes, logger)
	wsHandler := ws.NewHandler(submitter, limiter, cfg.MaxUploadBytes, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})

	r.Get("/", uiHandler.Index)
	r.Post("/predict", uiHandler.Predict)
	r.Get("/sample.csv", uiHandler.Sample)

	r.Post("/api/predict", apiHandler.Predict)
	r.Get("/ws", wsHandler.HandleWS)

	return r
}
