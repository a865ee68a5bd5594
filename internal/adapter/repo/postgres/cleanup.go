package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/showpulse/showpulse/internal/domain"
)

// CleanupRepo prunes collected data past the retention window. Sentiment
// scores and comments cascade when their posts are deleted.
type CleanupRepo struct{ Pool PgxPool }

// NewCleanupRepo constructs a CleanupRepo with the given pool.
func NewCleanupRepo(p PgxPool) *CleanupRepo { return &CleanupRepo{Pool: p} }

// DeletePostsOlderThan removes posts whose posted_at is before the cutoff,
// in one transaction, and returns the number of posts removed.
func (r *CleanupRepo) DeletePostsOlderThan(ctx domain.Context, cutoff time.Time) (int64, error) {
	tracer := otel.Tracer("repo.cleanup")
	ctx, span := tracer.Start(ctx, "cleanup.DeletePostsOlderThan")
	defer span.End()
	span.SetAttributes(attribute.String("cleanup.cutoff", cutoff.Format(time.RFC3339)))

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM reddit_posts WHERE posted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=cleanup.delete_posts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=cleanup.commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStaleRateBuckets removes rate limiter mirror rows not refilled
// since the cutoff.
func (r *CleanupRepo) DeleteStaleRateBuckets(ctx domain.Context, cutoff time.Time) (int64, error) {
	tracer := otel.Tracer("repo.cleanup")
	ctx, span := tracer.Start(ctx, "cleanup.DeleteStaleRateBuckets")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM rate_limit_buckets WHERE last_refill < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=cleanup.delete_buckets: %w", err)
	}
	return tag.RowsAffected(), nil
}
