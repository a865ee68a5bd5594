package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/showpulse/showpulse/internal/domain"
)

// SentimentRepo persists sentiment scores.
type SentimentRepo struct{ Pool PgxPool }

// NewSentimentRepo constructs a SentimentRepo with the given pool.
func NewSentimentRepo(p PgxPool) *SentimentRepo { return &SentimentRepo{Pool: p} }

// Upsert writes a score for a post. Re-analysis replaces the existing row.
func (r *SentimentRepo) Upsert(ctx domain.Context, s domain.SentimentScore) error {
	tracer := otel.Tracer("repo.sentiments")
	ctx, span := tracer.Start(ctx, "sentiments.Upsert")
	defer span.End()
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	at := s.AnalyzedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	q := `INSERT INTO sentiment_scores (id, post_id, show_id, compound, positive, neutral, negative, model, analyzed_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	      ON CONFLICT (post_id) DO UPDATE SET
	        compound = EXCLUDED.compound,
	        positive = EXCLUDED.positive,
	        neutral = EXCLUDED.neutral,
	        negative = EXCLUDED.negative,
	        model = EXCLUDED.model,
	        analyzed_at = EXCLUDED.analyzed_at`
	if _, err := r.Pool.Exec(ctx, q, id, s.PostID, s.ShowID, s.Compound, s.Positive, s.Neutral, s.Negative, s.Model, at); err != nil {
		return fmt.Errorf("op=sentiment.upsert: %w", err)
	}
	return nil
}

// ListByShow returns a show's scores, newest first.
func (r *SentimentRepo) ListByShow(ctx domain.Context, showID string, limit int) ([]domain.SentimentScore, error) {
	tracer := otel.Tracer("repo.sentiments")
	ctx, span := tracer.Start(ctx, "sentiments.ListByShow")
	defer span.End()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, post_id, show_id, compound, positive, neutral, negative, model, analyzed_at
	      FROM sentiment_scores WHERE show_id=$1 ORDER BY analyzed_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, showID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=sentiment.list: %w", err)
	}
	defer rows.Close()
	var out []domain.SentimentScore
	for rows.Next() {
		var s domain.SentimentScore
		if err := rows.Scan(&s.ID, &s.PostID, &s.ShowID, &s.Compound, &s.Positive, &s.Neutral, &s.Negative, &s.Model, &s.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("op=sentiment.list_scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=sentiment.list_rows: %w", err)
	}
	return out, nil
}

// StatsRepo maintains the per-show aggregates in show_statistics.
type StatsRepo struct{ Pool PgxPool }

// NewStatsRepo constructs a StatsRepo with the given pool.
func NewStatsRepo(p PgxPool) *StatsRepo { return &StatsRepo{Pool: p} }

// Refresh recomputes a show's aggregate row from the posts and scores
// tables and returns the fresh values.
func (r *StatsRepo) Refresh(ctx domain.Context, showID string) (domain.ShowStats, error) {
	tracer := otel.Tracer("repo.stats")
	ctx, span := tracer.Start(ctx, "stats.Refresh")
	defer span.End()
	q := `INSERT INTO show_statistics (show_id, post_count, analyzed_count, mean_compound, last_collected_at, updated_at)
	      SELECT $1,
	             (SELECT COUNT(*) FROM reddit_posts WHERE show_id=$1),
	             (SELECT COUNT(*) FROM sentiment_scores WHERE show_id=$1),
	             COALESCE((SELECT AVG(compound) FROM sentiment_scores WHERE show_id=$1), 0),
	             (SELECT MAX(created_at) FROM reddit_posts WHERE show_id=$1),
	             now()
	      ON CONFLICT (show_id) DO UPDATE SET
	        post_count = EXCLUDED.post_count,
	        analyzed_count = EXCLUDED.analyzed_count,
	        mean_compound = EXCLUDED.mean_compound,
	        last_collected_at = EXCLUDED.last_collected_at,
	        updated_at = EXCLUDED.updated_at
	      RETURNING show_id, post_count, analyzed_count, mean_compound, last_collected_at, updated_at`
	var st domain.ShowStats
	err := r.Pool.QueryRow(ctx, q, showID).Scan(&st.ShowID, &st.PostCount, &st.AnalyzedCount, &st.MeanCompound, &st.LastCollectedAt, &st.UpdatedAt)
	if err != nil {
		return domain.ShowStats{}, fmt.Errorf("op=stats.refresh: %w", err)
	}
	return st, nil
}

// Get loads a show's aggregate row.
func (r *StatsRepo) Get(ctx domain.Context, showID string) (domain.ShowStats, error) {
	tracer := otel.Tracer("repo.stats")
	ctx, span := tracer.Start(ctx, "stats.Get")
	defer span.End()
	q := `SELECT show_id, post_count, analyzed_count, mean_compound, last_collected_at, updated_at
	      FROM show_statistics WHERE show_id=$1`
	var st domain.ShowStats
	err := r.Pool.QueryRow(ctx, q, showID).Scan(&st.ShowID, &st.PostCount, &st.AnalyzedCount, &st.MeanCompound, &st.LastCollectedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ShowStats{}, fmt.Errorf("op=stats.get: %w", domain.ErrNotFound)
		}
		return domain.ShowStats{}, fmt.Errorf("op=stats.get: %w", err)
	}
	return st, nil
}
