package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetnest/internal/amqp"
	"budgetnest/internal/auth"
	"budgetnest/internal/backend"
	"budgetnest/internal/cache"
	"budgetnest/internal/cli"
	"budgetnest/internal/core"
	apphttp "budgetnest/internal/http"
	"budgetnest/internal/log"
	"budgetnest/internal/middleware/ratelimit"
	"budgetnest/internal/period"
	"budgetnest/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger).CreateBackend(startCtx, backendConfig)
	startCancel()
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	store := result.Backend

	gateway, err := auth.NewService(store.Users(), store.Sessions(), auth.Config{
		Secret:        []byte(cfg.SessionSecret),
		TTL:           cfg.SessionTTL,
		RefreshWindow: cfg.SessionRefreshWindow,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize session gateway", log.FieldError, err)
		os.Exit(1)
	}

	// A nil *amqp.Client must not end up inside a non-nil interface.
	var publisher services.EventPublisher
	if result.Publisher != nil {
		publisher = result.Publisher
	}

	incomeSnapshots := cache.NewLRUCache[[]core.Income](cfg.SnapshotCapacity, cfg.SnapshotTTL)
	expenseSnapshots := cache.NewLRUCache[[]core.Expense](cfg.SnapshotCapacity, cfg.SnapshotTTL)

	income := services.NewEntryManager[core.Income](amqp.KindIncome, store.Income(), incomeSnapshots, publisher, logger)
	expenses := services.NewEntryManager[core.Expense](amqp.KindExpenses, store.Expenses(), expenseSnapshots, publisher, logger)

	unsubscribe := gateway.OnIdentityChange(func(ev auth.Event) {
		if ev.Kind != auth.EventSignedOut {
			return
		}
		income.Forget(ev.Identity.UserID)
		expenses.Forget(ev.Identity.UserID)
	})

	resolver := period.NewResolver(nil)

	// Background sweeps share one context so shutdown stops them together.
	bgCtx, bgCancel := context.WithCancel(context.Background())

	cacheManager := cache.NewManager(logger)
	cacheManager.Register("income_snapshots", incomeSnapshots)
	cacheManager.Register("expense_snapshots", expenseSnapshots)
	cacheManager.Register("sessions", cache.CleanerFunc(func() int {
		ctx, cancel := context.WithTimeout(bgCtx, 10*time.Second)
		defer cancel()
		n, err := gateway.PurgeExpired(ctx)
		if err != nil {
			logger.Warn("Failed to purge expired sessions", log.FieldError, err)
			return 0
		}
		return int(n)
	}))
	cacheManager.StartCleanup(bgCtx, cfg.CleanupInterval)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		CookieSecure: cfg.CookieSecure,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, apphttp.Dependencies{
		Gateway:  gateway,
		Income:   income,
		Expenses: expenses,
		Insights: services.NewInsightsService(store.Income(), store.Expenses(), resolver, logger),
		Resolver: resolver,
		Store:    store,
		Caches: map[string]apphttp.Sizer{
			"income_snapshots":  incomeSnapshots,
			"expense_snapshots": expenseSnapshots,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		unsubscribe()
		bgCancel()
		cacheManager.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting BudgetNest server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"record_events", publisher != nil,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
