package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"docqa/internal/app/bootstrap"
	"docqa/internal/domain/ingest"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	core, err := bootstrap.BuildCore(bootCtx, cfg)
	bootCancel()
	if err != nil {
		applog.Fatalf("❌ Bootstrap failed: %v", err)
	}
	defer core.Close()

	processor := ingest.NewProcessor(core.Lock, core.Tracker, core.RawStore, core.Registry, core.Retriever, &cfg.Retrieval)
	worker := ingest.NewWorker(core.Queue, processor, core.Tracker, cfg.Worker)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		applog.Info("🔄 Shutting down worker...")
		cancel()
	}()

	applog.Infof("🚀 Ingestion worker starting (consumers: %d)", cfg.Worker.Consumers)
	worker.Run(ctx)

	applog.Info("👋 Worker stopped")
}
