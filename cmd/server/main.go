package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"docqa/internal/api"
	"docqa/internal/app/bootstrap"
	"docqa/internal/domain/retrieval"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
	"docqa/internal/provider"
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

	bootstrap.RegisterLLMProviders(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	core, err := bootstrap.BuildCore(bootCtx, cfg)
	bootCancel()
	if err != nil {
		applog.Fatalf("❌ Bootstrap failed: %v", err)
	}
	defer core.Close()

	pipeline := retrieval.NewPipeline(core.Retriever, &cfg.Retrieval)
	if cfg.Retrieval.HasRewrite() {
		if provider.HasProvider(cfg.Retrieval.RewriteProvider) {
			rewriter := retrieval.NewLLMRewriter(cfg.Retrieval.RewriteProvider, cfg.Retrieval.RewriteModel, cfg.Retrieval.MaxHistoryTurns)
			pipeline.SetRewriter(rewriter)
			applog.Infof("✅ Query rewriter initialized (provider: %s, model: %s)", cfg.Retrieval.RewriteProvider, cfg.Retrieval.RewriteModel)
		} else {
			applog.Warnf("⚠️  Rewrite enabled but provider %s not registered, skipping", cfg.Retrieval.RewriteProvider)
		}
	}
	if cfg.Retrieval.HasRerank() {
		if provider.HasProvider(cfg.Retrieval.RerankProvider) {
			reranker := retrieval.NewLLMReranker(cfg.Retrieval.RerankProvider, cfg.Retrieval.RerankModel)
			pipeline.SetReranker(reranker)
			applog.Infof("✅ Reranker initialized (provider: %s, model: %s)", cfg.Retrieval.RerankProvider, cfg.Retrieval.RerankModel)
		} else {
			applog.Warnf("⚠️  Rerank enabled but provider %s not registered, skipping", cfg.Retrieval.RerankProvider)
		}
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.JWTSecret = cfg.Auth.JWTSecret
	serverConfig.JWTIssuer = cfg.Auth.JWTIssuer

	server := api.NewServer(serverConfig, pipeline, &cfg.Retrieval)
	server.SetIngestion(core.Tracker, core.Scanner, core.Sweeper, core.Retriever)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}
