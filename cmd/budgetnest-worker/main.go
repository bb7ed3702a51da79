package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"budgetnest/internal/amqp"
	"budgetnest/internal/backend"
	"budgetnest/internal/cli"
	"budgetnest/internal/log"
	"budgetnest/internal/services"
	"budgetnest/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)

	logger.Info("Starting budgetnest-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	ledger, err := backend.NewFactory(logger).CreateLedger(startCtx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err)
		os.Exit(1)
	}
	if !ledger.Remote {
		logger.Warn("Mirroring into the in-process ledger; rows are lost on restart")
	}

	ledgerWorker := worker.NewLedgerWorker(ledger.Ledger, logger)
	if err := ledgerWorker.StartupCheck(startCtx); err != nil {
		// Not fatal: appends retry through the processor.
		logger.Error("Ledger startup check failed", log.FieldError, err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	procConfig := services.DefaultMirrorProcessorConfig()
	procConfig.MaxRetries = cfg.MirrorMaxRetries
	processor := services.NewMirrorProcessor(amqpClient, ledgerWorker.HandleRecordEvent, procConfig, logger)

	started := time.Now()
	healthSrv := &http.Server{
		Addr:              ":" + cfg.WorkerHTTPPort,
		Handler:           workerRoutes(processor, ledgerWorker, ledger.Remote, started),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		logger.Info("Shutting down worker...")
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Warn("Mirror processor did not stop cleanly", log.FieldError, err)
		}
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Health server shutdown error", log.FieldError, err)
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start mirror processor", log.FieldError, err)
		os.Exit(1)
	}

	go func() {
		logger.Info("Worker health endpoint listening", "port", cfg.WorkerHTTPPort)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

func workerRoutes(processor *services.MirrorProcessor, lw *worker.LedgerWorker, remote bool, started time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if !processor.IsRunning() {
			status, code = "stopped", http.StatusServiceUnavailable
		}
		body := map[string]interface{}{
			"status":        status,
			"timestamp":     time.Now().Format(time.RFC3339),
			"uptime":        time.Since(started).String(),
			"remote_ledger": remote,
			"stats":         lw.Stats(),
		}
		if err := processor.Err(); err != nil {
			body["last_error"] = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		stats := lw.Stats()
		running := 0
		if processor.IsRunning() {
			running = 1
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		fmt.Fprintf(w, "# HELP ledger_rows_appended_total Ledger rows written\n")
		fmt.Fprintf(w, "# TYPE ledger_rows_appended_total counter\n")
		fmt.Fprintf(w, "ledger_rows_appended_total %d\n\n", stats.Appended)

		fmt.Fprintf(w, "# HELP ledger_duplicates_total Events skipped because the ledger already had them\n")
		fmt.Fprintf(w, "# TYPE ledger_duplicates_total counter\n")
		fmt.Fprintf(w, "ledger_duplicates_total %d\n\n", stats.Duplicates)

		fmt.Fprintf(w, "# HELP ledger_failures_total Events that could not be mirrored\n")
		fmt.Fprintf(w, "# TYPE ledger_failures_total counter\n")
		fmt.Fprintf(w, "ledger_failures_total %d\n\n", stats.Failed)

		fmt.Fprintf(w, "# HELP mirror_processor_running Whether the consume loop is active\n")
		fmt.Fprintf(w, "# TYPE mirror_processor_running gauge\n")
		fmt.Fprintf(w, "mirror_processor_running %d\n\n", running)

		fmt.Fprintf(w, "# HELP uptime_seconds Worker uptime in seconds\n")
		fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
		fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(started).Seconds())
	})

	return r
}
