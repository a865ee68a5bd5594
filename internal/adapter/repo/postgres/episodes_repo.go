package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/showpulse/showpulse/internal/domain"
)

const episodeInsertBatch = 100

// EpisodeRepo persists episodes.
type EpisodeRepo struct{ Pool PgxPool }

// NewEpisodeRepo constructs an EpisodeRepo with the given pool.
func NewEpisodeRepo(p PgxPool) *EpisodeRepo { return &EpisodeRepo{Pool: p} }

// UpsertBatch inserts episodes in chunks of 100 rows per transaction,
// updating rating fields on conflict. Returns the number of rows written.
func (r *EpisodeRepo) UpsertBatch(ctx domain.Context, eps []domain.Episode) (int, error) {
	tracer := otel.Tracer("repo.episodes")
	ctx, span := tracer.Start(ctx, "episodes.UpsertBatch")
	defer span.End()
	if len(eps) == 0 {
		return 0, nil
	}
	written := 0
	for start := 0; start < len(eps); start += episodeInsertBatch {
		end := start + episodeInsertBatch
		if end > len(eps) {
			end = len(eps)
		}
		n, err := r.upsertChunk(ctx, eps[start:end])
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (r *EpisodeRepo) upsertChunk(ctx domain.Context, eps []domain.Episode) (int, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("op=episode.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `INSERT INTO episodes (id, show_id, imdb_id, season_number, episode_number, average_rating, num_votes, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	      ON CONFLICT (imdb_id) DO UPDATE SET
	        average_rating = EXCLUDED.average_rating,
	        num_votes = EXCLUDED.num_votes`
	now := time.Now().UTC()
	written := 0
	for _, e := range eps {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx, q, id, e.ShowID, e.IMDbID, e.SeasonNumber, e.EpisodeNumber, e.AverageRating, e.NumVotes, now); err != nil {
			return written, fmt.Errorf("op=episode.upsert: %w", err)
		}
		written++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=episode.commit: %w", err)
	}
	return written, nil
}

// ListByShow returns a show's episodes ordered by season and episode number.
// A season of 0 returns all seasons.
func (r *EpisodeRepo) ListByShow(ctx domain.Context, showID string, season int) ([]domain.Episode, error) {
	tracer := otel.Tracer("repo.episodes")
	ctx, span := tracer.Start(ctx, "episodes.ListByShow")
	defer span.End()
	var (
		rows pgx.Rows
		err  error
	)
	if season > 0 {
		q := `SELECT id, show_id, imdb_id, season_number, episode_number, average_rating, num_votes, created_at
		      FROM episodes WHERE show_id=$1 AND season_number=$2
		      ORDER BY episode_number`
		rows, err = r.Pool.Query(ctx, q, showID, season)
	} else {
		q := `SELECT id, show_id, imdb_id, season_number, episode_number, average_rating, num_votes, created_at
		      FROM episodes WHERE show_id=$1
		      ORDER BY season_number, episode_number`
		rows, err = r.Pool.Query(ctx, q, showID)
	}
	if err != nil {
		return nil, fmt.Errorf("op=episode.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Episode
	for rows.Next() {
		var e domain.Episode
		if err := rows.Scan(&e.ID, &e.ShowID, &e.IMDbID, &e.SeasonNumber, &e.EpisodeNumber, &e.AverageRating, &e.NumVotes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=episode.list_scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=episode.list_rows: %w", err)
	}
	return out, nil
}
