// Command collector runs the data collection pipelines: "imdb" rebuilds
// the shows catalog from the dataset dumps, "reddit" sweeps Reddit for
// discussions and queues them for analysis.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/showpulse/showpulse/internal/adapter/imdb"
	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/adapter/queue/redpanda"
	redditcli "github.com/showpulse/showpulse/internal/adapter/reddit"
	"github.com/showpulse/showpulse/internal/adapter/repo/postgres"
	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/service/ratelimiter"
	"github.com/showpulse/showpulse/internal/usecase"
)

func main() {
	mode := flag.String("mode", "", "pipeline to run: imdb or reddit")
	maxShows := flag.Int("max-shows", 0, "limit the number of shows processed (0 = configured default)")
	forceDownload := flag.Bool("force-download", false, "re-download dataset dumps even when cached")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	if *mode != "imdb" && *mode != "reddit" {
		fmt.Fprintln(os.Stderr, "usage: collector -mode imdb|reddit [-max-shows N] [-force-download] [-yes]")
		os.Exit(2)
	}
	if !*yes && !confirm(*mode) {
		fmt.Println("aborted")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	switch *mode {
	case "imdb":
		runIngest(ctx, cfg, pool, *forceDownload)
	case "reddit":
		runCollect(ctx, cfg, pool, *maxShows)
	}
}

func confirm(mode string) bool {
	fmt.Printf("run the %s pipeline against the configured database? [y/N] ", mode)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}

func runIngest(ctx context.Context, cfg config.Config, pool postgres.PgxPool, force bool) {
	svc := usecase.NewIngestService(
		imdb.NewDatasetClient(cfg),
		postgres.NewShowRepo(pool),
		postgres.NewEpisodeRepo(pool),
		cfg.MinVotes,
		cfg.MaxShows,
		filepath.Join(cfg.DataDir, "processed"),
	)
	res, err := svc.Run(ctx, force)
	if err != nil {
		slog.Error("ingest failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("ingested %d shows and %d episodes in %s\n", res.ShowsWritten, res.EpisodesWritten, res.Took.Round(time.Second))
}

func runCollect(ctx context.Context, cfg config.Config, pool postgres.PgxPool, maxShows int) {
	if !cfg.RedditEnabled() {
		slog.Error("reddit credentials not configured")
		os.Exit(1)
	}

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("queue producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = producer.Close() }()

	limiter := buildLimiter(ctx, cfg, pool)
	client := redditcli.New(cfg, limiter)

	plan := redditcli.DefaultSearchPlan()
	if cfg.CollectorPlanPath != "" {
		plan, err = redditcli.LoadSearchPlan(cfg.CollectorPlanPath)
		if err != nil {
			slog.Error("search plan load failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	svc := usecase.NewCollectService(
		postgres.NewShowRepo(pool),
		postgres.NewPostRepo(pool),
		producer,
		client,
		plan,
	)
	svc.ProgressPath = filepath.Join(cfg.DataDir, "collection_progress.json")
	res, err := svc.Run(ctx, maxShows)
	if err != nil {
		slog.Error("collection failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("processed %d shows, collected %d posts, enqueued %d tasks in %s\n",
		res.ShowsProcessed, res.PostsCollected, res.TasksEnqueued, res.Took.Round(time.Second))
}

// buildLimiter wires the shared Redis token bucket for the Reddit API.
// Bucket state is mirrored to Postgres so restarts resume mid-window; a
// missing Redis address disables shared limiting and the client falls
// back to its fixed request interval.
func buildLimiter(ctx context.Context, cfg config.Config, pool postgres.PgxPool) *ratelimiter.RedisLuaLimiter {
	if cfg.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	buckets := map[string]ratelimiter.BucketConfig{
		redditcli.LimiterKey: ratelimiter.PerMinute(cfg.RedditPerMinute),
	}
	mirror := func(ctx context.Context, key string, bc ratelimiter.BucketConfig, tokens float64, lastRefill time.Time) {
		_, err := pool.Exec(ctx, `
			INSERT INTO rate_limit_buckets (bucket_key, capacity, refill_rate, tokens, last_refill)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (bucket_key) DO UPDATE SET
				capacity = EXCLUDED.capacity,
				refill_rate = EXCLUDED.refill_rate,
				tokens = EXCLUDED.tokens,
				last_refill = EXCLUDED.last_refill`,
			key, bc.Capacity, bc.RefillRate, tokens, lastRefill)
		if err != nil {
			slog.Warn("rate bucket mirror write failed", slog.Any("error", err))
		}
	}
	limiter := ratelimiter.New(rdb, buckets, mirror)

	if rows := loadBucketSnapshots(ctx, pool); len(rows) > 0 {
		if err := limiter.Warm(ctx, rows); err != nil {
			slog.Warn("rate bucket warm failed", slog.Any("error", err))
		}
	}
	return limiter
}

func loadBucketSnapshots(ctx context.Context, pool postgres.PgxPool) []ratelimiter.WarmRow {
	rows, err := pool.Query(ctx, `SELECT bucket_key, tokens, EXTRACT(EPOCH FROM last_refill) FROM rate_limit_buckets`)
	if err != nil {
		slog.Warn("rate bucket snapshot load failed", slog.Any("error", err))
		return nil
	}
	defer rows.Close()

	var out []ratelimiter.WarmRow
	for rows.Next() {
		var row ratelimiter.WarmRow
		if err := rows.Scan(&row.Key, &row.Tokens, &row.LastRefillSec); err != nil {
			slog.Warn("rate bucket snapshot scan failed", slog.Any("error", err))
			return nil
		}
		out = append(out, row)
	}
	return out
}
