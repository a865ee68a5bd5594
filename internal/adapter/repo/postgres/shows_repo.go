// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository interfaces for shows, episodes, Reddit
// posts, and sentiment scores using a minimal pgx pool abstraction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/showpulse/showpulse/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// ShowRepo persists and loads shows using a minimal pgx pool.
type ShowRepo struct{ Pool PgxPool }

// NewShowRepo constructs a ShowRepo with the given pool.
func NewShowRepo(p PgxPool) *ShowRepo { return &ShowRepo{Pool: p} }

// Upsert inserts a show keyed by its IMDb id, updating rating fields on
// conflict, and returns the row id.
func (r *ShowRepo) Upsert(ctx domain.Context, s domain.Show) (string, error) {
	tracer := otel.Tracer("repo.shows")
	ctx, span := tracer.Start(ctx, "shows.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "shows"),
	)
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	genres := s.Genres
	if genres == nil {
		genres = []string{}
	}
	q := `INSERT INTO shows (id, imdb_id, title, original_title, start_year, end_year, runtime_minutes, genres, average_rating, num_votes, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	      ON CONFLICT (imdb_id) DO UPDATE SET
	        title = EXCLUDED.title,
	        end_year = EXCLUDED.end_year,
	        average_rating = EXCLUDED.average_rating,
	        num_votes = EXCLUDED.num_votes
	      RETURNING id`
	row := r.Pool.QueryRow(ctx, q, id, s.IMDbID, s.Title, s.OriginalTitle, s.StartYear, s.EndYear, s.RuntimeMinutes, genres, s.AverageRating, s.NumVotes, time.Now().UTC())
	var out string
	if err := row.Scan(&out); err != nil {
		return "", fmt.Errorf("op=show.upsert: %w", err)
	}
	return out, nil
}

// Get loads a show by id.
func (r *ShowRepo) Get(ctx domain.Context, id string) (domain.Show, error) {
	tracer := otel.Tracer("repo.shows")
	ctx, span := tracer.Start(ctx, "shows.Get")
	defer span.End()
	q := `SELECT id, imdb_id, title, original_title, start_year, end_year, runtime_minutes, genres, average_rating, num_votes, created_at FROM shows WHERE id=$1`
	return r.scanShow(r.Pool.QueryRow(ctx, q, id), "op=show.get")
}

// GetByIMDbID loads a show by its IMDb tconst.
func (r *ShowRepo) GetByIMDbID(ctx domain.Context, imdbID string) (domain.Show, error) {
	tracer := otel.Tracer("repo.shows")
	ctx, span := tracer.Start(ctx, "shows.GetByIMDbID")
	defer span.End()
	q := `SELECT id, imdb_id, title, original_title, start_year, end_year, runtime_minutes, genres, average_rating, num_votes, created_at FROM shows WHERE imdb_id=$1`
	return r.scanShow(r.Pool.QueryRow(ctx, q, imdbID), "op=show.get_by_imdb_id")
}

func (r *ShowRepo) scanShow(row pgx.Row, op string) (domain.Show, error) {
	var s domain.Show
	if err := row.Scan(&s.ID, &s.IMDbID, &s.Title, &s.OriginalTitle, &s.StartYear, &s.EndYear, &s.RuntimeMinutes, &s.Genres, &s.AverageRating, &s.NumVotes, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Show{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return domain.Show{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// List returns shows ordered by vote count, optionally filtered by genre.
func (r *ShowRepo) List(ctx domain.Context, offset, limit int, genre string) ([]domain.Show, error) {
	tracer := otel.Tracer("repo.shows")
	ctx, span := tracer.Start(ctx, "shows.List")
	defer span.End()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if genre != "" {
		q := `SELECT id, imdb_id, title, original_title, start_year, end_year, runtime_minutes, genres, average_rating, num_votes, created_at
		      FROM shows WHERE $3 = ANY(genres) ORDER BY num_votes DESC OFFSET $1 LIMIT $2`
		rows, err = r.Pool.Query(ctx, q, offset, limit, genre)
	} else {
		q := `SELECT id, imdb_id, title, original_title, start_year, end_year, runtime_minutes, genres, average_rating, num_votes, created_at
		      FROM shows ORDER BY num_votes DESC OFFSET $1 LIMIT $2`
		rows, err = r.Pool.Query(ctx, q, offset, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("op=show.list: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Show, 0, limit)
	for rows.Next() {
		var s domain.Show
		if err := rows.Scan(&s.ID, &s.IMDbID, &s.Title, &s.OriginalTitle, &s.StartYear, &s.EndYear, &s.RuntimeMinutes, &s.Genres, &s.AverageRating, &s.NumVotes, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=show.list_scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=show.list_rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of shows.
func (r *ShowRepo) Count(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.shows")
	ctx, span := tracer.Start(ctx, "shows.Count")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM shows`)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("op=show.count: %w", err)
	}
	return count, nil
}
