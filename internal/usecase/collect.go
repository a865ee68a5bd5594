package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/adapter/reddit"
	"github.com/showpulse/showpulse/internal/domain"
	"github.com/showpulse/showpulse/pkg/textx"
)

// RedditSearcher is the slice of the Reddit client the collector needs.
type RedditSearcher interface {
	Search(ctx domain.Context, subreddit, query string, limit int) ([]reddit.Post, error)
	Subscribers(ctx domain.Context, subreddit string) (int, error)
}

// CollectService sweeps Reddit for discussions about every show in the
// catalog and queues the new posts for sentiment analysis.
type CollectService struct {
	Shows domain.ShowRepository
	Posts domain.PostRepository
	Queue domain.Queue

	Searcher RedditSearcher
	Plan     reddit.SearchPlan

	// ShowDelay spaces out shows on top of the per-request pacing.
	ShowDelay time.Duration

	// ProgressPath, when set, receives a JSON snapshot of the sweep so an
	// interrupted overnight run shows how far it got.
	ProgressPath string
}

// NewCollectService constructs a CollectService with its dependencies.
func NewCollectService(shows domain.ShowRepository, posts domain.PostRepository, q domain.Queue, searcher RedditSearcher, plan reddit.SearchPlan) CollectService {
	return CollectService{
		Shows:     shows,
		Posts:     posts,
		Queue:     q,
		Searcher:  searcher,
		Plan:      plan,
		ShowDelay: 5 * time.Second,
	}
}

// CollectResult summarizes one sweep.
type CollectResult struct {
	ShowsProcessed int
	PostsCollected int
	TasksEnqueued  int
	Took           time.Duration
}

// Run walks the catalog ordered by vote count and collects each show in
// turn. Errors on a single show are logged and skipped so an overnight
// sweep survives transient failures; progress is logged every ten shows.
func (s CollectService) Run(ctx domain.Context, maxShows int) (CollectResult, error) {
	start := time.Now()

	if maxShows <= 0 {
		maxShows = 500
	}
	shows, err := s.Shows.List(ctx, 0, maxShows, "")
	if err != nil {
		return CollectResult{}, fmt.Errorf("op=collect.list_shows: %w", err)
	}
	if len(shows) == 0 {
		return CollectResult{}, fmt.Errorf("op=collect: no shows in catalog: %w", domain.ErrNotFound)
	}
	slog.Info("collection sweep starting", slog.Int("shows", len(shows)))

	var res CollectResult
	for i, show := range shows {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		n, err := s.CollectShow(ctx, show)
		if err != nil {
			slog.Error("show collection failed, skipping",
				slog.String("title", show.Title), slog.Any("error", err))
		} else {
			res.PostsCollected += n
			if n > 0 {
				if err := s.enqueue(ctx, show.ID); err != nil {
					slog.Error("enqueue failed", slog.String("show_id", show.ID), slog.Any("error", err))
				} else {
					res.TasksEnqueued++
				}
			}
		}
		res.ShowsProcessed++

		if (i+1)%10 == 0 {
			slog.Info("sweep progress",
				slog.Int("done", i+1), slog.Int("total", len(shows)),
				slog.Int("posts", res.PostsCollected))
			s.writeProgress(i+1, len(shows), res)
		}
		if i < len(shows)-1 && s.ShowDelay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(s.ShowDelay):
			}
		}
	}

	res.Took = time.Since(start)
	s.writeProgress(res.ShowsProcessed, len(shows), res)
	slog.Info("collection sweep complete",
		slog.Int("shows", res.ShowsProcessed),
		slog.Int("posts", res.PostsCollected),
		slog.Int("tasks", res.TasksEnqueued),
		slog.Duration("took", res.Took))
	return res, nil
}

// CollectShow searches all planned subreddits and terms for one show and
// persists the relevant, deduplicated results. Returns the number of
// posts written.
func (s CollectService) CollectShow(ctx domain.Context, show domain.Show) (int, error) {
	subreddits := s.subredditsFor(ctx, show.Title)

	seen := make(map[string]domain.RedditPost)
	for _, sub := range subreddits {
		for _, query := range s.Plan.Queries(show.Title) {
			posts, err := s.Searcher.Search(ctx, sub, query, s.Plan.LimitPerSearch)
			if err != nil {
				slog.Warn("search failed",
					slog.String("subreddit", sub), slog.String("query", query), slog.Any("error", err))
				continue
			}
			for _, p := range posts {
				if !s.Plan.IsRelevant(show.Title, p) {
					continue
				}
				if _, dup := seen[p.ID]; dup {
					continue
				}
				seen[p.ID] = domain.RedditPost{
					ShowID:       show.ID,
					RedditID:     p.ID,
					Title:        textx.SanitizeText(p.Title),
					Body:         textx.SanitizeText(p.SelfText),
					Score:        p.Score,
					UpvoteRatio:  p.UpvoteRatio,
					NumComments:  p.NumComments,
					Subreddit:    p.Subreddit,
					Author:       p.Author,
					URL:          p.URL,
					IsDiscussion: s.Plan.IsDiscussion(p),
					PostedAt:     p.CreatedUTC,
				}
			}
		}
	}
	if len(seen) == 0 {
		return 0, nil
	}

	batch := make([]domain.RedditPost, 0, len(seen))
	for _, p := range seen {
		batch = append(batch, p)
	}
	n, err := s.Posts.UpsertBatch(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("op=collect.upsert show=%s: %w", show.ID, err)
	}
	for _, p := range batch {
		observability.PostsCollectedTotal.WithLabelValues(p.Subreddit).Inc()
	}
	slog.Info("show collected", slog.String("title", show.Title), slog.Int("posts", n))
	return n, nil
}

// subredditsFor returns the planned subreddits, with the show's own
// subreddit prepended when it exists and is big enough to matter.
func (s CollectService) subredditsFor(ctx domain.Context, title string) []string {
	own := reddit.ShowSubredditName(title)
	if n, err := s.Searcher.Subscribers(ctx, own); err == nil && n > s.Plan.MinShowSubscribers {
		slog.Info("found show subreddit", slog.String("subreddit", own), slog.Int("subscribers", n))
		return append([]string{own}, s.Plan.Subreddits...)
	}
	return s.Plan.Subreddits
}

type sweepProgress struct {
	ShowsDone      int       `json:"shows_done"`
	ShowsTotal     int       `json:"shows_total"`
	PostsCollected int       `json:"posts_collected"`
	TasksEnqueued  int       `json:"tasks_enqueued"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s CollectService) writeProgress(done, total int, res CollectResult) {
	if s.ProgressPath == "" {
		return
	}
	snap := sweepProgress{
		ShowsDone:      done,
		ShowsTotal:     total,
		PostsCollected: res.PostsCollected,
		TasksEnqueued:  res.TasksEnqueued,
		UpdatedAt:      time.Now().UTC(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(s.ProgressPath, data, 0o644); err != nil {
		slog.Warn("progress snapshot write failed", slog.Any("error", err))
	}
}

func (s CollectService) enqueue(ctx domain.Context, showID string) error {
	unanalyzed, err := s.Posts.ListUnanalyzed(ctx, showID, 0)
	if err != nil {
		return err
	}
	if len(unanalyzed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(unanalyzed))
	for _, p := range unanalyzed {
		ids = append(ids, p.ID)
	}
	_, err = s.Queue.EnqueueAnalyze(ctx, domain.AnalyzeTaskPayload{
		ShowID:    showID,
		PostIDs:   ids,
		RequestID: uuid.New().String(),
	})
	return err
}
