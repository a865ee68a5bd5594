// Command worker consumes queued analyze tasks, scores post sentiment,
// and refreshes the per-show aggregates.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/showpulse/showpulse/internal/adapter/ai"
	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/adapter/queue/redpanda"
	"github.com/showpulse/showpulse/internal/adapter/repo/postgres"
	"github.com/showpulse/showpulse/internal/app"
	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/domain"
	"github.com/showpulse/showpulse/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Expose queue and scoring metrics on a dedicated endpoint so
	// Prometheus can scrape the worker separately from the API server.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	postRepo := postgres.NewPostRepo(pool)
	sentimentRepo := postgres.NewSentimentRepo(pool)
	statsRepo := postgres.NewStatsRepo(pool)

	// Scorer: OpenRouter when a key is configured, always falling back to
	// the local VADER lexicon so tasks never stall on the upstream API.
	var scorer domain.SentimentClient = ai.NewVaderClient()
	if cfg.OpenRouterAPIKey != "" {
		scorer = ai.NewFallbackClient(ai.NewOpenRouterClient(cfg), ai.NewVaderClient())
		slog.Info("sentiment scorer initialized", slog.String("model", cfg.SentimentModel))
	} else {
		slog.Info("sentiment scorer initialized", slog.String("model", "vader"))
	}

	analyzeSvc := usecase.NewAnalyzeService(postRepo, sentimentRepo, statsRepo, scorer, cfg.AnalyzeBatchSize)

	// Retention sweep runs alongside the consumer.
	if cfg.DataRetentionDays > 0 {
		sweeper := app.NewRetentionSweeper(postgres.NewCleanupRepo(pool), cfg.DataRetentionDays, cfg.CleanupInterval)
		go sweeper.Run(ctx)
		slog.Info("retention sweeper started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "showpulse-workers", analyzeSvc, cfg.ConsumerMaxConcurrency)
	if err != nil {
		slog.Error("consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
