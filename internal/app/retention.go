package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/showpulse/showpulse/internal/domain"
)

// RetentionStore is the slice of the cleanup repository the sweeper needs.
type RetentionStore interface {
	DeletePostsOlderThan(ctx domain.Context, cutoff time.Time) (int64, error)
	DeleteStaleRateBuckets(ctx domain.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper periodically drops posts past the retention window and
// rate limiter mirror rows nothing has touched in a while. Sentiment rows
// cascade with their posts.
type RetentionSweeper struct {
	store         RetentionStore
	retentionDays int
	interval      time.Duration
}

// NewRetentionSweeper constructs a sweeper; a nil store disables it.
func NewRetentionSweeper(store RetentionStore, retentionDays int, interval time.Duration) *RetentionSweeper {
	if store == nil {
		return nil
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionSweeper{store: store, retentionDays: retentionDays, interval: interval}
}

// Run sweeps once at startup and then on every tick until ctx is done.
func (s *RetentionSweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *RetentionSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("app.retention")
	ctx, span := tracer.Start(ctx, "RetentionSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	span.SetAttributes(attribute.Int("retention.days", s.retentionDays))

	posts, err := s.store.DeletePostsOlderThan(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		slog.Error("retention sweep: posts", slog.Any("error", err))
	}

	// Mirror rows stale for a week are dead buckets.
	buckets, err := s.store.DeleteStaleRateBuckets(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		span.RecordError(err)
		slog.Error("retention sweep: rate buckets", slog.Any("error", err))
	}

	if posts > 0 || buckets > 0 {
		slog.Info("retention sweep complete",
			slog.Int64("posts_deleted", posts),
			slog.Int64("buckets_deleted", buckets))
	}
}
