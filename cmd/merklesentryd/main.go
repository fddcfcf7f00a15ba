package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/quietridge/merklesentry/internal/cache"
	"github.com/quietridge/merklesentry/internal/config"
	"github.com/quietridge/merklesentry/internal/httpapi"
	"github.com/quietridge/merklesentry/internal/logging"
	"github.com/quietridge/merklesentry/internal/orchestrator"
	"github.com/quietridge/merklesentry/internal/scheduler"
	"github.com/quietridge/merklesentry/internal/storage"
	syncer "github.com/quietridge/merklesentry/internal/sync"
)

// shutdownGrace bounds how long the process waits for an in-flight build to
// finish before closing storage connections during a graceful shutdown.
const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("merklesentryd: configuration error: %v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	appLog := logger.With("main")

	signalCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// ctx is cancelled either by SIGINT/SIGTERM (via signalCtx) or by a fatal
	// condition in the server goroutine below (via cancelFatal), so both
	// enter the identical shutdown sequence.
	ctx, cancelFatal := context.WithCancel(signalCtx)
	defer cancelFatal()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("merklesentryd: failed to open storage backend: %v", err)
	}

	cacheTier := cache.New(cache.Config{
		Enabled:    cfg.CacheEnabled,
		Host:       cfg.CacheHost,
		Port:       cfg.CachePort,
		Password:   cfg.CachePassword,
		DB:         cfg.CacheDB,
		DefaultTTL: cfg.CacheDefaultTTL,
	}, logger)

	s := syncer.New(backend, cacheTier, logger.With("sync"))
	orc := orchestrator.New(orchestrator.Config{
		SourceDir:  cfg.SourceDirectory,
		BatchLimit: cfg.BatchSize,
	}, s, cacheTier, logger)

	sched := scheduler.New(time.Duration(cfg.ScanIntervalMinutes)*time.Minute, orc.BuildAndSync, logger)
	sched.Start(ctx)

	router := httpapi.NewRouter(httpapi.Deps{
		Environment:  cfg.Environment,
		Backend:      backend,
		Cache:        cacheTier,
		Scheduler:    sched,
		Orchestrator: orc,
		Log:          logger.With("httpapi"),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	var isShuttingDown atomic.Bool

	go func() {
		appLog.Infof("listening on %s (scan every %d min, source %s)", server.Addr, cfg.ScanIntervalMinutes, cfg.SourceDirectory)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Errorf("http server error: %v", err)
			cancelFatal()
		}
	}()

	<-ctx.Done()
	if !isShuttingDown.CompareAndSwap(false, true) {
		return
	}
	appLog.Infof("shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if !sched.AwaitIdle(shutdownCtx) {
		appLog.Warnf("in-flight build did not finish within %s; shutting down anyway", shutdownGrace)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Errorf("http server shutdown error: %v", err)
	}

	if err := backend.Close(); err != nil {
		appLog.Errorf("backend close error: %v", err)
	}

	appLog.Infof("stopped")
}

func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.BackendVariant {
	case storage.VariantObjectStore:
		return storage.OpenObjectStore(ctx, storage.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStoreEndpoint,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
			Bucket:    cfg.ObjectStoreBucket,
			Region:    cfg.ObjectStoreRegion,
			UseSSL:    cfg.ObjectStoreUseSSL,
		})
	default:
		return storage.OpenRelational(ctx, storage.RelationalConfig{
			URL:      cfg.RelationalURL,
			PoolSize: cfg.RelationalPoolSize,
		})
	}
}
