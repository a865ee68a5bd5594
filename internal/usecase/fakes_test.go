package usecase_test

import (
	"github.com/showpulse/showpulse/internal/adapter/reddit"
	"github.com/showpulse/showpulse/internal/domain"
)

type fakeShowRepo struct {
	upsert func(domain.Show) (string, error)
	get    func(string) (domain.Show, error)
	list   func(offset, limit int, genre string) ([]domain.Show, error)
	count  func() (int64, error)
}

func (f *fakeShowRepo) Upsert(_ domain.Context, s domain.Show) (string, error) { return f.upsert(s) }
func (f *fakeShowRepo) Get(_ domain.Context, id string) (domain.Show, error)  { return f.get(id) }
func (f *fakeShowRepo) GetByIMDbID(_ domain.Context, id string) (domain.Show, error) {
	return f.get(id)
}
func (f *fakeShowRepo) List(_ domain.Context, offset, limit int, genre string) ([]domain.Show, error) {
	return f.list(offset, limit, genre)
}
func (f *fakeShowRepo) Count(_ domain.Context) (int64, error) { return f.count() }

type fakeEpisodeRepo struct {
	upserted []domain.Episode
	list     func(showID string, season int) ([]domain.Episode, error)
	err      error
}

func (f *fakeEpisodeRepo) UpsertBatch(_ domain.Context, eps []domain.Episode) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.upserted = append(f.upserted, eps...)
	return len(eps), nil
}
func (f *fakeEpisodeRepo) ListByShow(_ domain.Context, showID string, season int) ([]domain.Episode, error) {
	return f.list(showID, season)
}

type fakePostRepo struct {
	upserted   []domain.RedditPost
	upsertErr  error
	byID       map[string]domain.RedditPost
	unanalyzed []domain.RedditPost
	listErr    error
}

func (f *fakePostRepo) UpsertBatch(_ domain.Context, posts []domain.RedditPost) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, posts...)
	return len(posts), nil
}
func (f *fakePostRepo) Get(_ domain.Context, id string) (domain.RedditPost, error) {
	p, ok := f.byID[id]
	if !ok {
		return domain.RedditPost{}, domain.ErrNotFound
	}
	return p, nil
}
func (f *fakePostRepo) ListUnanalyzed(_ domain.Context, _ string, _ int) ([]domain.RedditPost, error) {
	return f.unanalyzed, f.listErr
}
func (f *fakePostRepo) CountByShow(_ domain.Context, _ string) (int64, error) {
	return int64(len(f.upserted)), nil
}

type fakeSentimentRepo struct {
	upserted []domain.SentimentScore
	err      error
	recent   []domain.SentimentScore
}

func (f *fakeSentimentRepo) Upsert(_ domain.Context, s domain.SentimentScore) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, s)
	return nil
}
func (f *fakeSentimentRepo) ListByShow(_ domain.Context, _ string, _ int) ([]domain.SentimentScore, error) {
	return f.recent, nil
}

type fakeStatsRepo struct {
	refreshed []string
	stats     domain.ShowStats
	getErr    error
}

func (f *fakeStatsRepo) Refresh(_ domain.Context, showID string) (domain.ShowStats, error) {
	f.refreshed = append(f.refreshed, showID)
	return f.stats, nil
}
func (f *fakeStatsRepo) Get(_ domain.Context, _ string) (domain.ShowStats, error) {
	return f.stats, f.getErr
}

type fakeQueue struct {
	payloads []domain.AnalyzeTaskPayload
	err      error
}

func (f *fakeQueue) EnqueueAnalyze(_ domain.Context, p domain.AnalyzeTaskPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, p)
	return p.RequestID, nil
}

type fakeScorer struct {
	model string
	fn    func(texts []string) ([]domain.Sentiment, error)
}

func (f *fakeScorer) Score(_ domain.Context, texts []string) ([]domain.Sentiment, error) {
	return f.fn(texts)
}
func (f *fakeScorer) Model() string { return f.model }

type fakeSearcher struct {
	results     map[string][]reddit.Post
	subscribers map[string]int
}

func (f *fakeSearcher) Search(_ domain.Context, subreddit, _ string, _ int) ([]reddit.Post, error) {
	return f.results[subreddit], nil
}
func (f *fakeSearcher) Subscribers(_ domain.Context, sub string) (int, error) {
	n, ok := f.subscribers[sub]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return n, nil
}
