package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	restartBackoff    = time.Second
	maxRestartBackoff = 5 * time.Minute
)

// RunWithRecovery runs fn until it returns or ctx is cancelled. A panic in fn
// is logged and fn is started again after a backoff that doubles with every
// panic, up to maxRestartBackoff.
func RunWithRecovery(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context)) {
	log := logger.With("goroutine", name)
	backoff := restartBackoff
	for panics := 1; ctx.Err() == nil; panics++ {
		if !callRecovered(ctx, log, fn) {
			log.Info("goroutine stopped")
			return
		}
		if ctx.Err() != nil {
			break
		}
		log.Warn("goroutine restarting", "panics", panics, "backoff", backoff)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxRestartBackoff)
	}
	log.Info("goroutine stopped", "reason", "context cancelled")
}

// callRecovered calls fn and reports whether it panicked.
func callRecovered(ctx context.Context, log *slog.Logger, fn func(context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			log.Error("goroutine panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(ctx)
	return false
}

// SetupLogger creates a structured slog.Logger with JSON output to w.
// A nil w writes to stdout.
func SetupLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if w == nil {
		w = os.Stdout
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}

// Serve runs serve(srv) until ctx is cancelled, then shuts srv down gracefully.
// serve is srv.ListenAndServe for plain HTTP or a TLS listener wrapper.
func Serve(ctx context.Context, logger *slog.Logger, srv *http.Server, serve func() error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "addr", srv.Addr)
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
