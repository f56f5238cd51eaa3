package server

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"kpitracker/internal/domain/directory"
	"kpitracker/internal/domain/kpi"
	"kpitracker/internal/platform/config"
	"kpitracker/internal/platform/db"
	"kpitracker/internal/platform/jobs"
	"kpitracker/internal/platform/metrics"
	authhandler "kpitracker/internal/transport/http/handlers/auth"
	kpishandler "kpitracker/internal/transport/http/handlers/kpis"
	"kpitracker/internal/transport/http/middleware"
)

func Run() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	}

	collector := metrics.New()
	store := kpi.NewStore(pool)
	users := directory.NewStore(pool)

	logPublisher := &kpi.LogPublisher{Logger: logger}
	publisher := kpi.PublisherFunc(func(ctx context.Context, ev kpi.EntryUpdated) {
		collector.RecordEntryUpsert()
		logPublisher.EntryUpdated(ctx, ev)
	})

	engine := kpi.NewEngine(store, publisher, store, logger)
	jobService := jobs.New(pool, cfg, engine)
	jobService.Start(ctx)

	var scheduler kpi.AggregationScheduler = jobService
	workflow := kpi.NewWorkflow(store, scheduler, logger)
	analyzer := kpi.NewAnalyzer(store)
	analyzer.FullHistoryStats = cfg.TrendStatsFullHistory
	resolver := kpi.NewResolver(store, users)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Metrics(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metricsz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if err := json.NewEncoder(w).Encode(collector.Snapshot()); err != nil {
				slog.Warn("metrics write failed", "err", err)
			}
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(pool, cfg.JWTSecret, cfg.TokenTTL)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.With(middleware.RequireAuth).Get("/auth/me", authHandler.HandleMe)

		kpiHandler := &kpishandler.Handler{
			Store:      store,
			Users:      users,
			Workflow:   workflow,
			Engine:     engine,
			Analyzer:   analyzer,
			Resolver:   resolver,
			Reconciler: jobService,
			Metrics:    collector,
			Idem:       middleware.NewIdempotencyStore(pool),
		}
		kpiHandler.RegisterRoutes(r)
	})

	logger.Info("kpitracker server listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
