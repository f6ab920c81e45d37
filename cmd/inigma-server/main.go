package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	stdjson "encoding/json"
	"os/signal"

	"github.com/idone-su/inigma/internal/api"
	"github.com/idone-su/inigma/internal/audit"
	"github.com/idone-su/inigma/internal/backup"
	"github.com/idone-su/inigma/internal/cleanup"
	"github.com/idone-su/inigma/internal/config"
	"github.com/idone-su/inigma/internal/ratelimit"
	"github.com/idone-su/inigma/internal/secrets"
	"github.com/idone-su/inigma/internal/storage"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Parse()

	// Configure logging format.
	var logHandler slog.Handler
	if cfg.LogFormat == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(logHandler))

	// Disable audit logging if configured.
	if !cfg.AuditLogs {
		audit.Enabled = false
	}

	// Open storage.
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}

	// Create lifecycle manager.
	mgr := secrets.NewManager(store, secrets.ManagerConfig{
		RetentionDays: cfg.RetentionDays,
	})

	// Register Prometheus live-secrets gauge.
	api.RegisterLiveSecretsGauge(func() float64 {
		n, err := mgr.LiveCount(context.Background())
		if err != nil {
			return -1
		}
		return float64(n)
	})

	// Sweep expired secrets once at startup, then on the configured interval.
	sched := cleanup.NewScheduler(mgr.RunCleanup, cfg.CleanupInterval)

	// Periodic database snapshots.
	var backupSched *backup.Scheduler
	if cfg.BackupDir != "" {
		provider, err := backup.NewLocalProvider(cfg.BackupDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to set up backups: %v\n", err)
			os.Exit(1)
		}
		runner := backup.NewRunner(store, provider, cfg.BackupKeep)
		backupSched = backup.NewScheduler(runner.Run, cfg.BackupInterval)
		slog.Info("backups enabled",
			"dir", cfg.BackupDir,
			"interval", cfg.BackupInterval,
			"keep", cfg.BackupKeep,
		)
	}

	// Create API server.
	serverOpts := []api.ServerOption{
		api.WithDefaultTTL(cfg.DefaultTTLDays),
		api.WithPageSize(cfg.PageSize),
	}
	if cfg.RateLimitPerSec > 0 {
		serverOpts = append(serverOpts, api.WithRateLimiter(
			ratelimit.New(cfg.RateLimitPerSec, cfg.RateLimitBurst, cfg.RateLimitKeys),
		))
		slog.Info("rate limiting enabled",
			"per_second", cfg.RateLimitPerSec,
			"burst", cfg.RateLimitBurst,
		)
	}
	if origins := parseCSVList(cfg.AllowedOrigins); len(origins) > 0 {
		serverOpts = append(serverOpts, api.WithAllowedOrigins(origins))
		slog.Info("CORS origins configured", "origins", origins)
	}
	if cfg.AdminSecret != "" {
		serverOpts = append(serverOpts, api.WithAdminSecret(cfg.AdminSecret))
		slog.Info("admin API enabled")
	}
	if backupSched != nil {
		serverOpts = append(serverOpts, api.WithBackups(backupSched))
	}

	srv := api.NewServer(mgr, cfg.Domain, serverOpts...)

	// Initialize OpenTelemetry tracing if configured.
	var tp *sdktrace.TracerProvider
	if cfg.OTelServiceName != "" {
		tp, err = initTracer(context.Background(), cfg.OTelServiceName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize OpenTelemetry: %v\n", err)
			os.Exit(1)
		}
		slog.Info("OpenTelemetry tracing enabled", "service", cfg.OTelServiceName)
	}

	handler := srv.Router()
	if tp != nil {
		handler = otelhttp.NewHandler(handler, "inigma")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Separate management server for health probes and metrics.
	var mgmtServer *http.Server
	if cfg.ManagementAddr != "" {
		mgmtMux := http.NewServeMux()
		mgmtMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = stdjson.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})
		mgmtMux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := mgr.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = stdjson.NewEncoder(w).Encode(map[string]string{"status": "error"})
				return
			}
			_ = stdjson.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})
		mgmtMux.Handle("GET /metrics", api.MetricsHandler())

		mgmtServer = &http.Server{
			Addr:              cfg.ManagementAddr,
			Handler:           mgmtMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("inigma starting", "addr", cfg.Addr, "domain", cfg.Domain)
		var err error
		if cfg.TLS {
			err = httpServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if mgmtServer != nil {
		g.Go(func() error {
			slog.Info("management server starting", "addr", cfg.ManagementAddr)
			if err := mgmtServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Give in-flight requests 30 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if mgmtServer != nil {
			if err := mgmtServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("management server shutdown error", "error", err)
			}
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
	}

	// Stop the schedulers, flush tracing, and close storage.
	sched.Shutdown()
	if backupSched != nil {
		backupSched.Shutdown()
	}
	if tp != nil {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("tracer provider shutdown error", "error", err)
		}
	}
	store.Close()
	slog.Info("shutdown complete")
}

func parseCSVList(s string) []string {
	var result []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}

// initTracer sets up an OTLP gRPC trace exporter and returns the TracerProvider.
// Exporter endpoint is configured via the standard OTEL_EXPORTER_OTLP_ENDPOINT
// env var (default: localhost:4317).
func initTracer(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}
