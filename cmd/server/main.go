package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/sambatan/internal/auth"
	"github.com/mmynk/sambatan/internal/config"
	"github.com/mmynk/sambatan/internal/coordination"
	"github.com/mmynk/sambatan/internal/events"
	"github.com/mmynk/sambatan/internal/ledger"
	"github.com/mmynk/sambatan/internal/metrics"
	"github.com/mmynk/sambatan/internal/middleware"
	"github.com/mmynk/sambatan/internal/service"
	"github.com/mmynk/sambatan/internal/shipping"
	"github.com/mmynk/sambatan/internal/storage/sqlite"
	"github.com/mmynk/sambatan/internal/sweeper"
	"github.com/mmynk/sambatan/pkg/api/apiconnect"
	"github.com/mmynk/sambatan/pkg/logging"
)

const (
	tokenDuration   = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	logging.Setup()

	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bus, err := events.NewBus(events.BusOptions{
		Buffer:  cfg.Events.Buffer,
		Workers: cfg.Events.Workers,
		OnDrop:  func(events.Event) { m.EventDropped() },
	})
	if err != nil {
		return err
	}
	bus.SubscribeAll(logEvent)
	go bus.Run(ctx)
	defer bus.Close()

	l := ledger.New(store, ledger.Options{
		LockTimeout: cfg.Ledger.LockTimeout,
		MaxRetries:  cfg.Ledger.MaxRetries,
		Publisher:   bus,
		Authorizer:  middleware.RoleAuthorizer{},
		Metrics:     m,
	})

	catalog, origins, closeCatalog, err := newCatalog(cfg.Shipping.Catalog)
	if err != nil {
		return err
	}
	defer closeCatalog()

	optimizer := shipping.NewOptimizer(catalog, origins, shipping.OptimizerOptions{
		MaxEstimatedDays: cfg.Shipping.MaxEstimatedDays,
		Places:           cfg.Shipping.CurrencyPrecision,
		Concurrency:      cfg.Shipping.QuoteConcurrency,
		Metrics:          m,
	})
	facade := coordination.New(l, optimizer)

	sw := sweeper.New(l, sweeper.Options{
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
		Metrics:   m,
	})
	if err := sw.Start(ctx); err != nil {
		return err
	}
	defer sw.Stop()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, tokenDuration)

	mux := http.NewServeMux()

	// Register Connect service
	path, handler := apiconnect.NewSambatanServiceHandler(
		service.NewSambatanService(facade),
		connect.WithInterceptors(
			middleware.RequireAuth(jwtManager, apiconnect.SambatanServiceGetStatusProcedure),
			middleware.LoggingInterceptor(),
		),
	)
	mux.Handle(path, handler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Add logging and CORS middleware, then wrap with h2c for HTTP/2 without
	// TLS (required for Connect)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", cfg.ListenAddr, "catalog", cfg.Shipping.Catalog.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCatalog builds the rate catalog and origin resolver for the configured mode.
func newCatalog(cfg config.CatalogConfig) (shipping.RateCatalog, shipping.OriginResolver, func(), error) {
	if cfg.Mode == config.CatalogHTTP {
		c := shipping.NewHTTPCatalog(cfg.BaseURL, cfg.Timeout)
		slog.Info("Using HTTP rate catalog", "base_url", cfg.BaseURL)
		return c, c, func() { c.Close() }, nil
	}

	catalog, origins, err := cfg.StaticCatalog()
	if err != nil {
		return nil, nil, nil, err
	}
	slog.Info("Using static rate catalog",
		"destinations", len(catalog.ByDestination),
		"products", len(origins.ByProduct),
	)
	return catalog, origins, func() {}, nil
}

func logEvent(_ context.Context, e events.Event) {
	slog.Info("Event",
		"event_type", e.Type,
		"group_purchase_id", e.GroupPurchaseID,
		"user_id", e.UserID,
		"committed_quantity", e.CommittedQuantity,
		"target_quantity", e.TargetQuantity,
		"status", e.Status,
	)
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, "+middleware.ErrorHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
