package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/domain"
)

// AnalyzeService scores collected posts and maintains the per-show
// aggregates. It backs both the queue worker and the synchronous
// re-analyze API endpoint.
type AnalyzeService struct {
	Posts      domain.PostRepository
	Sentiments domain.SentimentRepository
	Stats      domain.StatsRepository
	Scorer     domain.SentimentClient

	// BatchSize bounds one scoring call when a task names no posts.
	BatchSize int
}

// NewAnalyzeService constructs an AnalyzeService with its dependencies.
func NewAnalyzeService(posts domain.PostRepository, sentiments domain.SentimentRepository, stats domain.StatsRepository, scorer domain.SentimentClient, batchSize int) AnalyzeService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return AnalyzeService{Posts: posts, Sentiments: sentiments, Stats: stats, Scorer: scorer, BatchSize: batchSize}
}

// HandleAnalyzeTask scores the posts named by the task, or the show's
// next unanalyzed batch when the task names none, then refreshes the
// show's aggregates. Posts that disappeared since enqueue are skipped.
func (s AnalyzeService) HandleAnalyzeTask(ctx domain.Context, payload domain.AnalyzeTaskPayload) error {
	if payload.ShowID == "" {
		return fmt.Errorf("%w: show id required", domain.ErrInvalidArgument)
	}

	posts, err := s.loadPosts(ctx, payload)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		slog.Info("nothing to analyze", slog.String("show_id", payload.ShowID))
		return nil
	}

	texts := make([]string, len(posts))
	for i, p := range posts {
		texts[i] = strings.TrimSpace(p.Title + "\n" + p.Body)
	}

	scores, err := s.Scorer.Score(ctx, texts)
	if err != nil {
		return fmt.Errorf("op=analyze.score show=%s: %w", payload.ShowID, err)
	}
	if len(scores) != len(posts) {
		return fmt.Errorf("op=analyze.score: got %d scores for %d posts: %w", len(scores), len(posts), domain.ErrSchemaInvalid)
	}

	model := s.Scorer.Model()
	now := time.Now().UTC()
	for i, p := range posts {
		sc := scores[i]
		err := s.Sentiments.Upsert(ctx, domain.SentimentScore{
			PostID:     p.ID,
			ShowID:     p.ShowID,
			Compound:   sc.Compound,
			Positive:   sc.Positive,
			Neutral:    sc.Neutral,
			Negative:   sc.Negative,
			Model:      model,
			AnalyzedAt: now,
		})
		if err != nil {
			return fmt.Errorf("op=analyze.persist post=%s: %w", p.ID, err)
		}
		observability.SentimentCompoundHistogram.Observe(sc.Compound)
	}

	stats, err := s.Stats.Refresh(ctx, payload.ShowID)
	if err != nil {
		return fmt.Errorf("op=analyze.stats show=%s: %w", payload.ShowID, err)
	}
	slog.Info("show analyzed",
		slog.String("show_id", payload.ShowID),
		slog.String("model", model),
		slog.Int("scored", len(posts)),
		slog.Float64("mean_compound", stats.MeanCompound))
	return nil
}

func (s AnalyzeService) loadPosts(ctx domain.Context, payload domain.AnalyzeTaskPayload) ([]domain.RedditPost, error) {
	if len(payload.PostIDs) == 0 {
		posts, err := s.Posts.ListUnanalyzed(ctx, payload.ShowID, s.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("op=analyze.load show=%s: %w", payload.ShowID, err)
		}
		return posts, nil
	}

	posts := make([]domain.RedditPost, 0, len(payload.PostIDs))
	for _, id := range payload.PostIDs {
		p, err := s.Posts.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				slog.Warn("post gone since enqueue, skipping", slog.String("post_id", id))
				continue
			}
			return nil, fmt.Errorf("op=analyze.load post=%s: %w", id, err)
		}
		posts = append(posts, p)
	}
	return posts, nil
}
