package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/config"
	"github.com/kailas-cloud/fusegate/internal/db"
	dbValkey "github.com/kailas-cloud/fusegate/internal/db/valkey"
	"github.com/kailas-cloud/fusegate/internal/domain"
	logpkg "github.com/kailas-cloud/fusegate/internal/logger"
	"github.com/kailas-cloud/fusegate/internal/metrics"
	"github.com/kailas-cloud/fusegate/internal/repository/scorecache"
	"github.com/kailas-cloud/fusegate/internal/resilience"
	chiTransport "github.com/kailas-cloud/fusegate/internal/transport/chi"
	openaiModels "github.com/kailas-cloud/fusegate/internal/transport/openai"
	searchTransport "github.com/kailas-cloud/fusegate/internal/transport/search"
	"github.com/kailas-cloud/fusegate/internal/usecase/evidence"
	"github.com/kailas-cloud/fusegate/internal/usecase/gate"
	"github.com/kailas-cloud/fusegate/internal/usecase/pipeline"
	"github.com/kailas-cloud/fusegate/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fusegate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("lexical_url", cfg.Search.LexicalURL),
		zap.String("dense_url", cfg.Search.DenseURL),
	)

	ctx := context.Background()

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Optional valkey-backed score cache. Without database addrs the cache
	// falls back to in-process memory.
	var store db.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))
	}

	var cache evidence.Cache
	if cfg.Pipeline.Evidence.CacheEnabled {
		if store != nil {
			ttl := time.Duration(cfg.Database.ScoreTTLSec) * time.Second
			cache = scorecache.NewValkey(store, ttl, metrics.ScoreCacheTotal, logger)
		} else {
			cache = scorecache.NewMemory()
		}
	}

	// Shared retry/breaker executor for all model calls.
	exec := resilience.NewExecutor(resilience.Config{
		MaxAttempts:    cfg.Resilience.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Resilience.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Resilience.MaxBackoffMS) * time.Millisecond,
		BreakerEnabled: cfg.Resilience.BreakerEnabled,
		FailureRatio:   cfg.Resilience.BreakerRatio,
		MinRequests:    uint32(cfg.Resilience.BreakerMinRequests),
		OpenTimeout:    time.Duration(cfg.Resilience.BreakerOpenSec) * time.Second,
	}, logger)

	// Model adapters. Each role is optional; a missing model abstains from
	// the evidence quorum (or skips drafting) instead of failing.
	var reranker domain.Reranker
	if cfg.Models.RerankerModel != "" {
		reranker = openaiModels.NewReranker(modelConfig(cfg.Models, cfg.Models.RerankerModel, logger), exec)
	}
	var entailer domain.Entailer
	if cfg.Models.EntailerModel != "" {
		entailer = openaiModels.NewEntailer(modelConfig(cfg.Models, cfg.Models.EntailerModel, logger), exec)
	}
	var generator domain.Generator
	if cfg.Models.GeneratorModel != "" {
		generator = openaiModels.NewGenerator(modelConfig(cfg.Models, cfg.Models.GeneratorModel, logger), exec)
	}
	logger.Info("Model adapters created",
		zap.String("provider", cfg.Models.Provider),
		zap.Bool("reranker", reranker != nil),
		zap.Bool("entailer", entailer != nil),
		zap.Bool("generator", generator != nil),
	)

	// Upstream search indexes
	searchClient := searchTransport.NewClient(searchTransport.Config{
		LexicalURL: cfg.Search.LexicalURL,
		DenseURL:   cfg.Search.DenseURL,
		APIKey:     cfg.Search.APIKey,
		Timeout:    time.Duration(cfg.Search.CallTimeoutSec) * time.Second,
	})

	filter := evidence.New(reranker, entailer, cache)

	// The gate records every pipeline query and probes the pipeline's
	// components, so it is built first and receives the probes afterwards.
	gateSvc := gate.New(
		nil,
		time.Duration(cfg.Gate.ProbeTimeoutSec)*time.Second,
		cfg.Gate.WindowSize,
		gate.DefaultFloors(),
		metrics.ProbeTotal,
		logger,
	)

	pipe, err := pipeline.New(
		searchClient,
		searchClient,
		generator,
		filter,
		gateSvc,
		cfg.Pipeline,
		time.Duration(cfg.Search.CallTimeoutSec)*time.Second,
	)
	if err != nil {
		logger.Fatal("Invalid pipeline configuration", zap.Error(err))
	}
	gateSvc.WithProbes(pipe.Probes())

	probeCtx, stopProbes := context.WithCancel(ctx)
	defer stopProbes()
	if cfg.Gate.ProbeIntervalSec > 0 {
		go gateSvc.RunPeriodic(probeCtx, time.Duration(cfg.Gate.ProbeIntervalSec)*time.Second)
	}

	server := chiTransport.NewServer(pipe, gateSvc, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopProbes()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// modelConfig builds the shared provider settings for one model role.
func modelConfig(m config.ModelsConfig, model string, logger *zap.Logger) *openaiModels.Config {
	return &openaiModels.Config{
		APIKey:            m.APIKey,
		BaseURL:           m.BaseURL,
		Model:             model,
		Provider:          m.Provider,
		RequestsPerSecond: m.RequestsPerSecond,
		Logger:            logger,
	}
}
