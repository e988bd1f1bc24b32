package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/httpapi"
	"github.com/loqalabs/loqa-scribe/internal/storage"
)

const (
	pruneInterval   = 6 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// Runtime is the long-running scribe daemon: the wired App behind an HTTP
// API, plus background revision pruning.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, logger: logger}
}

// Start runs the scribe until ctx is cancelled or the HTTP listener fails.
func (r *Runtime) Start(ctx context.Context) error {
	tel, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer r.closeTelemetry(tel)

	app, err := Open(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			r.logger.Error("app shutdown error", slogError(err))
		}
	}()
	app.Surface.Mount()

	api := &httpapi.Handler{
		Store:   app.Store,
		Surface: app.Surface,
		Metrics: tel.handler,
		Ready:   func() bool { return r.ready.Load() && app.Healthy() },
		Logger:  r.logger.With(slog.String("component", "http")),
	}
	if app.TTS != nil {
		api.Reader = app.TTS
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port)),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	serveErr := r.serve(srv)
	if db, ok := app.KV.(*storage.SQLite); ok {
		r.goBackground(func() { r.pruneLoop(bgCtx, db) })
	}

	r.ready.Store(true)
	r.logger.Info("scribe listening", slog.String("addr", srv.Addr))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	r.ready.Store(false)
	r.logger.Info("scribe stopping")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	r.wg.Wait()
	return runErr
}

func (r *Runtime) serve(srv *http.Server) <-chan error {
	errc := make(chan error, 1)
	r.goBackground(func() {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		r.logger.Error("http server failed", slogError(err))
		errc <- err
	})
	return errc
}

func (r *Runtime) goBackground(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// pruneLoop trims old note revisions on a fixed interval.
func (r *Runtime) pruneLoop(ctx context.Context, db *storage.SQLite) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.Prune(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("revision prune failed", slogError(err))
			}
		}
	}
}

func (r *Runtime) closeTelemetry(tel *telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
