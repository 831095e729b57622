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
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/league-engine/internal/config"
	"github.com/atmx/league-engine/internal/league"
	"github.com/atmx/league-engine/internal/metrics"
	"github.com/atmx/league-engine/internal/repo"
	"github.com/atmx/league-engine/internal/settlement"
	"github.com/atmx/league-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Initialize store ---
	st, cleanup, err := openStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()
	r := repo.New(st)

	// --- WebSocket hub ---
	wsHub := league.NewWSHub()
	go wsHub.Run(ctx)

	// --- Settlement ---
	engineOpts := []settlement.Option{
		settlement.WithLease(cfg.Settlement.Lease),
		settlement.WithLogger(logger),
	}
	if cfg.Settlement.Owner != "" {
		engineOpts = append(engineOpts, settlement.WithOwner(cfg.Settlement.Owner))
	}
	engine := settlement.NewEngine(r, wsHub, engineOpts...)
	scheduler := settlement.NewScheduler(engine, r, settlement.SchedulerConfig{
		Interval:      cfg.Settlement.Interval,
		MaxConcurrent: cfg.Settlement.MaxConcurrent,
	})
	go scheduler.Start(ctx)

	// --- League service ---
	svc := league.NewService(r, scheduler, wsHub)

	// --- HTTP router ---
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(metrics.Middleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"league-engine"}`))
	})

	// Prometheus metrics endpoint.
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for payout notifications.
		r.Get("/ws", wsHub.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("league-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down league-engine...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("league-engine stopped")
}

// openStore picks the key-value backend from the storage config.
func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, []func(), error) {
	var cleanup []func()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("ensure schema: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
			return store.NewCachedStore(pg, rdb, cfg.CacheTTL), cleanup, nil
		}
		return pg, cleanup, nil
	}

	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, cleanup, fmt.Errorf("redis ping: %w", err)
		}
		slog.Info("using Redis as primary store", "namespace", cfg.RedisNamespace)
		return store.NewRedisStore(rdb, cfg.RedisNamespace), cleanup, nil
	}

	slog.Warn("DATABASE_URL and REDIS_URL not set, using in-memory store (data will not persist)")
	return store.NewMemoryStore(), cleanup, nil
}
