package server

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
	"github.com/jackc/pgx/v5/pgxpool"

	"hrmprivacy/internal/domain/audit"
	"hrmprivacy/internal/domain/auth"
	"hrmprivacy/internal/domain/gdpr"
	"hrmprivacy/internal/platform/config"
	cryptoutil "hrmprivacy/internal/platform/crypto"
	"hrmprivacy/internal/platform/db"
	"hrmprivacy/internal/platform/jobs"
	"hrmprivacy/internal/platform/metrics"
	"hrmprivacy/internal/platform/storage"
	audithandler "hrmprivacy/internal/transport/http/handlers/audit"
	gdprhandler "hrmprivacy/internal/transport/http/handlers/gdpr"
	"hrmprivacy/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	Router  http.Handler
	Gateway storage.Gateway
	Privacy *gdpr.Service
	Audit   *audit.Service
	Jobs    *jobs.Service
	Metrics *metrics.Collector

	pool   *pgxpool.Pool
	sqlite *storage.SQLiteGateway
}

// New opens the configured storage backend, seeds retention policies and
// builds the router. Background schedules start with StartBackground.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Jobs: jobs.New()}
	if cfg.MetricsEnabled {
		app.Metrics = metrics.New()
	}

	locker, err := app.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Audit = audit.New(app.Gateway)
	app.Privacy, err = gdpr.NewService(gdpr.Deps{
		Gateway:          app.Gateway,
		Audit:            app.Audit,
		Locker:           locker,
		Crypto:           crypto,
		Metrics:          app.Metrics,
		ExportDir:        cfg.ExportDir,
		ExportExpiryDays: cfg.ExportExpiryDays,
		BatchSize:        cfg.RetentionBatchSize,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	if err := app.seedPolicies(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = app.routes()
	return app, nil
}

func (a *App) openStorage(ctx context.Context) (gdpr.SubjectLocker, error) {
	cfg := a.Config
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect failed: %w", err)
		}
		a.pool = pool
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
		}
		a.Gateway = storage.NewPostgresGateway(pool)
		return storage.NewAdvisoryLocker(pool), nil
	case config.StorageSQLite:
		gw, err := storage.NewSQLiteGateway(ctx, storage.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("sqlite open failed: %w", err)
		}
		a.sqlite = gw
		a.Gateway = gw
		return gdpr.NewKeyedMutex(), nil
	default:
		a.Gateway = storage.NewMemoryGateway()
		return gdpr.NewKeyedMutex(), nil
	}
}

func (a *App) seedPolicies(ctx context.Context) error {
	seeds, err := config.LoadPolicySeeds(a.Config.RetentionPolicyFile)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return nil
	}
	inputs := make([]gdpr.PolicyInput, 0, len(seeds))
	for _, seed := range seeds {
		inputs = append(inputs, gdpr.PolicyInput{
			PolicyType:            seed.PolicyType,
			RetentionPeriodMonths: seed.RetentionPeriodMonths,
			AutoDelete:            seed.AutoDelete,
			LegalHoldOverride:     seed.LegalHoldOverride,
			ScopeID:               seed.ScopeID,
			Description:           seed.Description,
		})
	}
	created, err := a.Privacy.SeedPolicies(ctx, inputs)
	if err != nil {
		return fmt.Errorf("seed retention policies: %w", err)
	}
	slog.Info("retention policies seeded", "created", created, "declared", len(inputs))
	return nil
}

func (a *App) routes() http.Handler {
	cfg := a.Config
	perms := auth.RolePermissionStore{}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Metrics(a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ping(ctx); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if a.Metrics != nil {
		router.Handle("/metrics", a.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		privacyHandler := gdprhandler.NewHandler(a.Privacy, perms, a.Jobs, middleware.NewIdempotencyStore(a.Gateway))
		privacyHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(a.Audit, perms)
		auditHandler.RegisterRoutes(r)
	})

	return router
}

func (a *App) ping(ctx context.Context) error {
	switch {
	case a.pool != nil:
		return a.pool.Ping(ctx)
	case a.sqlite != nil:
		return a.sqlite.Ping(ctx)
	}
	return nil
}

// StartBackground registers the retention sweep and export cleanup schedules
// and starts the job worker. Both stop when ctx ends.
func (a *App) StartBackground(ctx context.Context) error {
	if err := a.Jobs.Schedule(jobs.JobRetentionSweep, a.Config.RetentionSchedule, func(ctx context.Context) (any, error) {
		n, err := a.Privacy.RunAutomaticRetention(ctx)
		return n, err
	}); err != nil {
		return err
	}
	if err := a.Jobs.Schedule(jobs.JobExportCleanup, a.Config.ExportCleanupSchedule, func(ctx context.Context) (any, error) {
		n, err := a.Privacy.CleanupExpiredExports(ctx)
		return n, err
	}); err != nil {
		return err
	}
	a.Jobs.Start(ctx)
	if next := a.Jobs.NextRun(jobs.JobRetentionSweep); next != nil {
		slog.Info("retention sweep scheduled", "next", next.Format(time.RFC3339))
	}
	return nil
}

func (a *App) Close() {
	if a.Jobs != nil {
		a.Jobs.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			slog.Warn("sqlite close failed", "err", err)
		}
	}
}

func Run() error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.StartBackground(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("privacy engine listening", "addr", cfg.Addr, "storage", cfg.StorageDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
