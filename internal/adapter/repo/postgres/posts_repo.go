package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/showpulse/showpulse/internal/domain"
)

const postInsertBatch = 50

// PostRepo persists collected Reddit posts.
type PostRepo struct{ Pool PgxPool }

// NewPostRepo constructs a PostRepo with the given pool.
func NewPostRepo(p PgxPool) *PostRepo { return &PostRepo{Pool: p} }

// UpsertBatch inserts posts in chunks of 50 rows per transaction. Posts
// already present (same reddit_id) get their score and comment count
// refreshed. Returns the number of rows written.
func (r *PostRepo) UpsertBatch(ctx domain.Context, posts []domain.RedditPost) (int, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.UpsertBatch")
	defer span.End()
	if len(posts) == 0 {
		return 0, nil
	}
	written := 0
	for start := 0; start < len(posts); start += postInsertBatch {
		end := start + postInsertBatch
		if end > len(posts) {
			end = len(posts)
		}
		n, err := r.upsertChunk(ctx, posts[start:end])
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (r *PostRepo) upsertChunk(ctx domain.Context, posts []domain.RedditPost) (int, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("op=post.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `INSERT INTO reddit_posts (id, show_id, reddit_id, title, body, score, upvote_ratio, num_comments, subreddit, author, url, is_discussion, posted_at, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	      ON CONFLICT (reddit_id) DO UPDATE SET
	        score = EXCLUDED.score,
	        upvote_ratio = EXCLUDED.upvote_ratio,
	        num_comments = EXCLUDED.num_comments`
	now := time.Now().UTC()
	written := 0
	for _, p := range posts {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx, q, id, p.ShowID, p.RedditID, p.Title, p.Body, p.Score, p.UpvoteRatio, p.NumComments, p.Subreddit, p.Author, p.URL, p.IsDiscussion, p.PostedAt, now); err != nil {
			return written, fmt.Errorf("op=post.upsert: %w", err)
		}
		written++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=post.commit: %w", err)
	}
	return written, nil
}

// Get loads a post by id.
func (r *PostRepo) Get(ctx domain.Context, id string) (domain.RedditPost, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.Get")
	defer span.End()
	q := `SELECT id, show_id, reddit_id, title, body, score, upvote_ratio, num_comments, subreddit, author, url, is_discussion, posted_at, created_at
	      FROM reddit_posts WHERE id=$1`
	var p domain.RedditPost
	err := r.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.ShowID, &p.RedditID, &p.Title, &p.Body, &p.Score, &p.UpvoteRatio, &p.NumComments, &p.Subreddit, &p.Author, &p.URL, &p.IsDiscussion, &p.PostedAt, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RedditPost{}, fmt.Errorf("op=post.get: %w", domain.ErrNotFound)
		}
		return domain.RedditPost{}, fmt.Errorf("op=post.get: %w", err)
	}
	return p, nil
}

// ListUnanalyzed returns a show's posts that have no sentiment score yet,
// newest first.
func (r *PostRepo) ListUnanalyzed(ctx domain.Context, showID string, limit int) ([]domain.RedditPost, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.ListUnanalyzed")
	defer span.End()
	if limit <= 0 {
		limit = postInsertBatch
	}
	q := `SELECT p.id, p.show_id, p.reddit_id, p.title, p.body, p.score, p.upvote_ratio, p.num_comments, p.subreddit, p.author, p.url, p.is_discussion, p.posted_at, p.created_at
	      FROM reddit_posts p
	      LEFT JOIN sentiment_scores s ON s.post_id = p.id
	      WHERE p.show_id=$1 AND s.id IS NULL
	      ORDER BY p.posted_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, showID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=post.list_unanalyzed: %w", err)
	}
	defer rows.Close()
	var out []domain.RedditPost
	for rows.Next() {
		var p domain.RedditPost
		if err := rows.Scan(&p.ID, &p.ShowID, &p.RedditID, &p.Title, &p.Body, &p.Score, &p.UpvoteRatio, &p.NumComments, &p.Subreddit, &p.Author, &p.URL, &p.IsDiscussion, &p.PostedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=post.list_unanalyzed_scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=post.list_unanalyzed_rows: %w", err)
	}
	return out, nil
}

// CountByShow returns the number of collected posts for a show.
func (r *PostRepo) CountByShow(ctx domain.Context, showID string) (int64, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.CountByShow")
	defer span.End()
	var count int64
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM reddit_posts WHERE show_id=$1`, showID).Scan(&count); err != nil {
		return 0, fmt.Errorf("op=post.count: %w", err)
	}
	return count, nil
}
