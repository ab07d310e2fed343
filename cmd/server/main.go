package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"landdocs/internal/issuance/builder"
	"landdocs/internal/issuance/handler"
	issuancemetrics "landdocs/internal/issuance/metrics"
	"landdocs/internal/issuance/service"
	"landdocs/internal/platform/config"
	"landdocs/internal/platform/httpserver"
	"landdocs/internal/platform/logger"
	"landdocs/internal/platform/metrics"
	"landdocs/internal/render"
	"landdocs/pkg/platform/httputil"
	"landdocs/pkg/platform/middleware/metadata"
	"landdocs/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("landdocs stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildInfra(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer deps.close()

	b := builder.New(deps.caseFiles, render.New(nil), deps.blobs)
	svc := service.New(deps.ledger, deps.caseFiles, b, deps.blobs,
		service.WithLogger(log),
		service.WithAuditRecorder(deps.audit),
		service.WithMetrics(issuancemetrics.New(reg)),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(metrics.NewHTTP(reg).Middleware(func(r *http.Request) string {
		if rc := chi.RouteContext(r.Context()); rc != nil {
			return rc.RoutePattern()
		}
		return ""
	}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(reg))
	handler.New(svc, log).Register(r)

	srv := httpserver.New(cfg.Addr, r, cfg.Issuance.TxTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting landdocs", "addr", cfg.Addr, "env", cfg.Environment, "store", deps.storeKind, "blob", cfg.Blob.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if deps.relay != nil {
		g.Go(func() error {
			if err := deps.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit relay: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
