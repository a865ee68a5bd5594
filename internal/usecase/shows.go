package usecase

import (
	"errors"
	"fmt"

	"github.com/showpulse/showpulse/internal/domain"
)

// ShowService serves catalog reads for the HTTP API.
type ShowService struct {
	Shows      domain.ShowRepository
	Episodes   domain.EpisodeRepository
	Sentiments domain.SentimentRepository
	Stats      domain.StatsRepository
}

// NewShowService constructs a ShowService with its dependencies.
func NewShowService(shows domain.ShowRepository, episodes domain.EpisodeRepository, sentiments domain.SentimentRepository, stats domain.StatsRepository) ShowService {
	return ShowService{Shows: shows, Episodes: episodes, Sentiments: sentiments, Stats: stats}
}

// ShowPage is one page of the catalog.
type ShowPage struct {
	Shows  []domain.Show
	Total  int64
	Offset int
	Limit  int
}

// List returns a catalog page ordered by vote count.
func (s ShowService) List(ctx domain.Context, offset, limit int, genre string) (ShowPage, error) {
	if offset < 0 {
		return ShowPage{}, fmt.Errorf("%w: negative offset", domain.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	shows, err := s.Shows.List(ctx, offset, limit, genre)
	if err != nil {
		return ShowPage{}, err
	}
	total, err := s.Shows.Count(ctx)
	if err != nil {
		return ShowPage{}, err
	}
	return ShowPage{Shows: shows, Total: total, Offset: offset, Limit: limit}, nil
}

// Get loads one show by id.
func (s ShowService) Get(ctx domain.Context, id string) (domain.Show, error) {
	if id == "" {
		return domain.Show{}, fmt.Errorf("%w: id required", domain.ErrInvalidArgument)
	}
	return s.Shows.Get(ctx, id)
}

// EpisodeList returns a show's episodes, optionally for one season. The
// show must exist.
func (s ShowService) EpisodeList(ctx domain.Context, showID string, season int) ([]domain.Episode, error) {
	if _, err := s.Shows.Get(ctx, showID); err != nil {
		return nil, err
	}
	return s.Episodes.ListByShow(ctx, showID, season)
}

// SentimentSummary combines the per-show aggregates with recent scores.
type SentimentSummary struct {
	Stats  domain.ShowStats
	Recent []domain.SentimentScore
}

// Sentiment returns a show's aggregate sentiment plus its most recent
// individual scores. A show with no analyzed posts yet yields zero-valued
// aggregates rather than an error.
func (s ShowService) Sentiment(ctx domain.Context, showID string, limit int) (SentimentSummary, error) {
	if _, err := s.Shows.Get(ctx, showID); err != nil {
		return SentimentSummary{}, err
	}
	stats, err := s.Stats.Get(ctx, showID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return SentimentSummary{}, err
		}
		stats = domain.ShowStats{ShowID: showID}
	}
	recent, err := s.Sentiments.ListByShow(ctx, showID, limit)
	if err != nil {
		return SentimentSummary{}, err
	}
	return SentimentSummary{Stats: stats, Recent: recent}, nil
}
