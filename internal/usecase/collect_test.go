package usecase_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showpulse/showpulse/internal/adapter/reddit"
	"github.com/showpulse/showpulse/internal/domain"
	"github.com/showpulse/showpulse/internal/usecase"
)

func collectPlan() reddit.SearchPlan {
	p := reddit.DefaultSearchPlan()
	p.Subreddits = []string{"television"}
	p.Terms = []string{"{title}"}
	return p
}

func TestCollectShowFiltersAndDedupes(t *testing.T) {
	show := domain.Show{ID: "s1", Title: "Breaking Bad"}
	searcher := &fakeSearcher{results: map[string][]reddit.Post{
		"television": {
			{ID: "r1", Title: "Breaking Bad finale discussion", Subreddit: "television", CreatedUTC: time.Now()},
			{ID: "r1", Title: "Breaking Bad finale discussion", Subreddit: "television", CreatedUTC: time.Now()},
			{ID: "r2", Title: "Unrelated cooking thread", Subreddit: "television"},
			{ID: "r3", Title: "what to watch?", SelfText: "Breaking Bad is great", Subreddit: "television"},
		},
	}}
	postRepo := &fakePostRepo{}
	svc := usecase.NewCollectService(nil, postRepo, &fakeQueue{}, searcher, collectPlan())

	n, err := svc.CollectShow(context.Background(), show)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, postRepo.upserted, 2)
	for _, p := range postRepo.upserted {
		assert.Equal(t, "s1", p.ShowID)
	}
}

func TestCollectShowMarksDiscussions(t *testing.T) {
	show := domain.Show{ID: "s1", Title: "Severance"}
	searcher := &fakeSearcher{results: map[string][]reddit.Post{
		"television": {
			{ID: "r1", Title: "Severance episode discussion", Subreddit: "television"},
			{ID: "r2", Title: "Severance cast interview", Subreddit: "television"},
		},
	}}
	postRepo := &fakePostRepo{}
	svc := usecase.NewCollectService(nil, postRepo, &fakeQueue{}, searcher, collectPlan())

	_, err := svc.CollectShow(context.Background(), show)
	require.NoError(t, err)

	byID := map[string]domain.RedditPost{}
	for _, p := range postRepo.upserted {
		byID[p.RedditID] = p
	}
	assert.True(t, byID["r1"].IsDiscussion)
	assert.False(t, byID["r2"].IsDiscussion)
}

func TestCollectShowPrependsOwnSubreddit(t *testing.T) {
	show := domain.Show{ID: "s1", Title: "Breaking Bad"}
	searcher := &fakeSearcher{
		results: map[string][]reddit.Post{
			"breakingbad": {{ID: "r1", Title: "Breaking Bad rewatch", Subreddit: "breakingbad"}},
		},
		subscribers: map[string]int{"breakingbad": 2_000_000},
	}
	postRepo := &fakePostRepo{}
	svc := usecase.NewCollectService(nil, postRepo, &fakeQueue{}, searcher, collectPlan())

	n, err := svc.CollectShow(context.Background(), show)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "breakingbad", postRepo.upserted[0].Subreddit)
}

func TestCollectShowSkipsTinyShowSubreddit(t *testing.T) {
	show := domain.Show{ID: "s1", Title: "Breaking Bad"}
	searcher := &fakeSearcher{
		results:     map[string][]reddit.Post{"breakingbad": {{ID: "r1", Title: "Breaking Bad"}}},
		subscribers: map[string]int{"breakingbad": 12},
	}
	postRepo := &fakePostRepo{}
	svc := usecase.NewCollectService(nil, postRepo, &fakeQueue{}, searcher, collectPlan())

	n, err := svc.CollectShow(context.Background(), show)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCollectRunEnqueuesPerShow(t *testing.T) {
	shows := &fakeShowRepo{
		list: func(offset, limit int, genre string) ([]domain.Show, error) {
			return []domain.Show{
				{ID: "s1", Title: "Breaking Bad"},
				{ID: "s2", Title: "Obscure Show"},
			}, nil
		},
	}
	searcher := &fakeSearcher{results: map[string][]reddit.Post{
		"television": {{ID: "r1", Title: "Breaking Bad finale", Subreddit: "television"}},
	}}
	postRepo := &fakePostRepo{unanalyzed: []domain.RedditPost{{ID: "p1", ShowID: "s1"}}}
	queue := &fakeQueue{}
	svc := usecase.NewCollectService(shows, postRepo, queue, searcher, collectPlan())
	svc.ShowDelay = 0

	res, err := svc.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ShowsProcessed)
	assert.Equal(t, 1, res.PostsCollected)
	assert.Equal(t, 1, res.TasksEnqueued)
	require.Len(t, queue.payloads, 1)
	assert.Equal(t, "s1", queue.payloads[0].ShowID)
	assert.Equal(t, []string{"p1"}, queue.payloads[0].PostIDs)
	assert.NotEmpty(t, queue.payloads[0].RequestID)
}

func TestCollectRunWritesProgressSnapshot(t *testing.T) {
	shows := &fakeShowRepo{
		list: func(offset, limit int, genre string) ([]domain.Show, error) {
			return []domain.Show{{ID: "s1", Title: "Breaking Bad"}}, nil
		},
	}
	searcher := &fakeSearcher{results: map[string][]reddit.Post{
		"television": {{ID: "r1", Title: "Breaking Bad finale", Subreddit: "television"}},
	}}
	postRepo := &fakePostRepo{unanalyzed: []domain.RedditPost{{ID: "p1", ShowID: "s1"}}}
	svc := usecase.NewCollectService(shows, postRepo, &fakeQueue{}, searcher, collectPlan())
	svc.ShowDelay = 0
	svc.ProgressPath = filepath.Join(t.TempDir(), "progress.json")

	_, err := svc.Run(context.Background(), 10)
	require.NoError(t, err)

	data, err := os.ReadFile(svc.ProgressPath)
	require.NoError(t, err)
	var snap struct {
		ShowsDone      int `json:"shows_done"`
		ShowsTotal     int `json:"shows_total"`
		PostsCollected int `json:"posts_collected"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 1, snap.ShowsDone)
	assert.Equal(t, 1, snap.ShowsTotal)
	assert.Equal(t, 1, snap.PostsCollected)
}

func TestCollectRunEmptyCatalog(t *testing.T) {
	shows := &fakeShowRepo{
		list: func(offset, limit int, genre string) ([]domain.Show, error) {
			return nil, nil
		},
	}
	svc := usecase.NewCollectService(shows, &fakePostRepo{}, &fakeQueue{}, &fakeSearcher{}, collectPlan())
	svc.ShowDelay = 0

	_, err := svc.Run(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCollectRunCancellation(t *testing.T) {
	shows := &fakeShowRepo{
		list: func(offset, limit int, genre string) ([]domain.Show, error) {
			return []domain.Show{{ID: "s1", Title: "A"}, {ID: "s2", Title: "B"}}, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := usecase.NewCollectService(shows, &fakePostRepo{}, &fakeQueue{}, &fakeSearcher{}, collectPlan())
	svc.ShowDelay = 0

	_, err := svc.Run(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
