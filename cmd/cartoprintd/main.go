// cartoprintd serves the durable artifact store over HTTP: uploads from
// the rendering pipeline, downloads under /generated-maps/, and the
// operator surface (list, verify, move, delete, stats, reconcile). It
// relays classified storage errors verbatim and contains no business
// logic of its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/cartoprint/cartoprint/pkg/infrastructure/config"
	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
	"github.com/cartoprint/cartoprint/pkg/storage"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (JSON or YAML)")
		listenAddr  = flag.String("listen", "", "listen address (overrides config)")
		storageRoot = flag.String("storage-root", "", "storage root directory (overrides config)")
	)
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *storageRoot != "" {
		cfg.Storage.RootPath = *storageRoot
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewStore(&cfg.Storage, logger, storage.WithMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logger.Error("failed to initialize storage", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler := store.Reconciler()
	if report, err := reconciler.Sweep(ctx); err != nil {
		logger.Warn("startup reconciliation sweep failed", map[string]interface{}{"error": err.Error()})
	} else {
		logger.Info("startup reconciliation sweep complete", map[string]interface{}{
			"orphaned_payloads": len(report.OrphanedPayloads),
			"repaired_metadata": len(report.RepairedMetadata),
			"temp_removed":      report.TempFilesRemoved,
		})
	}

	if cfg.Reconcile.Watch {
		watcher, err := store.Watcher(time.Duration(cfg.Reconcile.DebounceSeconds) * time.Second)
		if err != nil {
			logger.Warn("failed to create reconciliation watcher", map[string]interface{}{"error": err.Error()})
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("failed to start reconciliation watcher", map[string]interface{}{"error": err.Error()})
		} else {
			defer watcher.Close()
		}
	}

	srv := newServer(store, reconciler, logger)

	router := mux.NewRouter()
	srv.registerRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cartoprintd listening", map[string]interface{}{"addr": cfg.Listen})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}
}

func buildLogger(cfg appconfig.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseLogFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	logCfg := &logging.Config{
		Level:  level,
		Format: format,
		Output: os.Stdout,
	}
	if cfg.File != "" {
		output, err := logging.CreateFileOutput(cfg.File)
		if err != nil {
			return nil, err
		}
		logCfg.Output = output
	}
	return logging.NewLogger(logCfg), nil
}
