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

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/opensplit/internal/auth"
	"github.com/mmynk/opensplit/internal/cache"
	"github.com/mmynk/opensplit/internal/config"
	"github.com/mmynk/opensplit/internal/events"
	"github.com/mmynk/opensplit/internal/metrics"
	"github.com/mmynk/opensplit/internal/middleware"
	"github.com/mmynk/opensplit/internal/ocr"
	"github.com/mmynk/opensplit/internal/service"
	"github.com/mmynk/opensplit/internal/storage"
	"github.com/mmynk/opensplit/internal/storage/postgres"
	"github.com/mmynk/opensplit/internal/storage/sqlite"
	"github.com/mmynk/opensplit/pkg/api/apiconnect"
	"github.com/mmynk/opensplit/pkg/logging"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
	// Only applies to tokens minted locally; provider tokens carry their own expiry.
	tokenDuration = 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}
	logging.SetupWith(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	g, ctx := errgroup.WithContext(ctx)

	balances, err := openCache(ctx, cfg, g)
	if err != nil {
		return err
	}

	m := metrics.New()
	opts := service.Options{
		Currency: cfg.Currency,
		Cache:    balances,
		Events:   events.Noop{},
		Metrics:  m,
	}

	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.InstanceID)
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer client.Close()
		opts.Events = client
		slog.Info("Group change events enabled", "exchange", cfg.AMQPExchange, "instance_id", cfg.InstanceID)

		g.Go(func() error {
			return client.Consume(ctx, func(ctx context.Context, msg *events.GroupChanged) error {
				slog.Debug("Invalidating balances changed elsewhere", "group_id", msg.GroupID, "reason", msg.Reason, "origin", msg.Origin)
				return balances.Invalidate(ctx, msg.GroupID)
			})
		})
	}

	if cfg.OCRURL != "" {
		opts.OCR = ocr.NewClient(cfg.OCRURL, cfg.OCRTimeout)
		slog.Info("Receipt scanning enabled", "url", cfg.OCRURL)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
	// Logging sits inside auth so every logged call carries its user.
	interceptors := connect.WithInterceptors(
		middleware.MetricsInterceptor(m),
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(),
	)

	mux := http.NewServeMux()

	// Register Connect services
	mux.Handle(apiconnect.NewGroupServiceHandler(service.NewGroupService(store, opts), interceptors))
	mux.Handle(apiconnect.NewExpenseServiceHandler(service.NewExpenseService(store, opts), interceptors))
	mux.Handle(apiconnect.NewProfileServiceHandler(service.NewProfileService(store), interceptors))

	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("Connect server starting", "address", server.Addr, "url", fmt.Sprintf("http://localhost%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DataBackend {
	case config.BackendPostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres storage: %w", err)
		}
		slog.Info("Storage initialized", "backend", cfg.DataBackend)
		return store, nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite storage: %w", err)
		}
		slog.Info("Storage initialized", "backend", cfg.DataBackend, "database", cfg.DBPath)
		return store, nil
	}
}

// openCache returns the configured balance cache. The in-memory cache's
// janitor runs in g until ctx is done.
func openCache(ctx context.Context, cfg *config.Config, g *errgroup.Group) (cache.BalanceCache, error) {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		c, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return c.Close()
		})
		slog.Info("Balance cache initialized", "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL)
		return c, nil
	case config.CacheNone:
		slog.Info("Balance cache disabled")
		return cache.Noop{}, nil
	default:
		c := cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)
		g.Go(func() error { return c.Run(ctx, janitorInterval) })
		slog.Info("Balance cache initialized", "backend", cfg.CacheBackend, "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
		return c, nil
	}
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
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
