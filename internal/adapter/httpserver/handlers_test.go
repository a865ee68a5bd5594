package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showpulse/showpulse/internal/adapter/httpserver"
	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/domain"
	"github.com/showpulse/showpulse/internal/usecase"
)

type showRepoStub struct {
	shows map[string]domain.Show
	list  []domain.Show
}

func (s *showRepoStub) Upsert(domain.Context, domain.Show) (string, error) {
	return "", domain.ErrInternal
}
func (s *showRepoStub) Get(_ domain.Context, id string) (domain.Show, error) {
	sh, ok := s.shows[id]
	if !ok {
		return domain.Show{}, domain.ErrNotFound
	}
	return sh, nil
}
func (s *showRepoStub) GetByIMDbID(_ domain.Context, id string) (domain.Show, error) {
	return s.Get(nil, id)
}
func (s *showRepoStub) List(domain.Context, int, int, string) ([]domain.Show, error) {
	return s.list, nil
}
func (s *showRepoStub) Count(domain.Context) (int64, error) { return int64(len(s.list)), nil }

type episodeRepoStub struct{ episodes []domain.Episode }

func (s *episodeRepoStub) UpsertBatch(domain.Context, []domain.Episode) (int, error) {
	return 0, domain.ErrInternal
}
func (s *episodeRepoStub) ListByShow(_ domain.Context, _ string, season int) ([]domain.Episode, error) {
	if season == 0 {
		return s.episodes, nil
	}
	var out []domain.Episode
	for _, e := range s.episodes {
		if e.SeasonNumber == season {
			out = append(out, e)
		}
	}
	return out, nil
}

type sentimentRepoStub struct{ recent []domain.SentimentScore }

func (s *sentimentRepoStub) Upsert(domain.Context, domain.SentimentScore) error {
	return domain.ErrInternal
}
func (s *sentimentRepoStub) ListByShow(domain.Context, string, int) ([]domain.SentimentScore, error) {
	return s.recent, nil
}

type statsRepoStub struct {
	stats domain.ShowStats
	err   error
}

func (s *statsRepoStub) Refresh(domain.Context, string) (domain.ShowStats, error) {
	return s.stats, s.err
}
func (s *statsRepoStub) Get(domain.Context, string) (domain.ShowStats, error) {
	return s.stats, s.err
}

type queueStub struct {
	payloads []domain.AnalyzeTaskPayload
	err      error
}

func (q *queueStub) EnqueueAnalyze(_ domain.Context, p domain.AnalyzeTaskPayload) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return p.RequestID, nil
}

func newTestServer(shows *showRepoStub, stats *statsRepoStub, q *queueStub) (*httpserver.Server, chi.Router) {
	if shows == nil {
		shows = &showRepoStub{}
	}
	if stats == nil {
		stats = &statsRepoStub{err: domain.ErrNotFound}
	}
	if q == nil {
		q = &queueStub{}
	}
	svc := usecase.NewShowService(shows, &episodeRepoStub{}, &sentimentRepoStub{}, stats)
	srv := httpserver.NewServer(config.Config{}, svc, q, nil, nil, nil)

	r := chi.NewRouter()
	r.Get("/v1/shows", srv.ListShowsHandler())
	r.Get("/v1/shows/{id}", srv.GetShowHandler())
	r.Get("/v1/shows/{id}/episodes", srv.ListEpisodesHandler())
	r.Get("/v1/shows/{id}/sentiment", srv.GetSentimentHandler())
	r.Post("/v1/analyze", srv.AnalyzeHandler())
	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	return srv, r
}

func TestListShows(t *testing.T) {
	shows := &showRepoStub{list: []domain.Show{
		{ID: "s1", IMDbID: "tt0903747", Title: "Breaking Bad", NumVotes: 2100000},
	}}
	_, r := newTestServer(shows, nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shows?limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Shows []map[string]any `json:"shows"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Shows, 1)
	assert.Equal(t, "Breaking Bad", body.Shows[0]["title"])
	assert.Equal(t, int64(1), body.Total)
}

func TestGetShowNotFound(t *testing.T) {
	_, r := newTestServer(nil, nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shows/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestListEpisodesBySeason(t *testing.T) {
	shows := &showRepoStub{shows: map[string]domain.Show{"s1": {ID: "s1"}}}
	_, r := newTestServer(shows, nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shows/s1/episodes?season=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shows/s1/episodes?season=-1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSentimentZeroStats(t *testing.T) {
	shows := &showRepoStub{shows: map[string]domain.Show{"s1": {ID: "s1"}}}
	_, r := newTestServer(shows, &statsRepoStub{err: domain.ErrNotFound}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shows/s1/sentiment", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Stats struct {
			ShowID    string `json:"show_id"`
			PostCount int64  `json:"post_count"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.Stats.ShowID)
	assert.Zero(t, body.Stats.PostCount)
}

func TestAnalyzeEnqueues(t *testing.T) {
	shows := &showRepoStub{shows: map[string]domain.Show{"s1": {ID: "s1"}}}
	q := &queueStub{}
	_, r := newTestServer(shows, nil, q)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"show_id":"s1"}`))
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, "s1", q.payloads[0].ShowID)
	assert.NotEmpty(t, q.payloads[0].RequestID)
	assert.Contains(t, rec.Body.String(), "queued")
}

func TestAnalyzeValidation(t *testing.T) {
	_, r := newTestServer(nil, nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeUnknownShow(t *testing.T) {
	q := &queueStub{}
	_, r := newTestServer(nil, nil, q)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"show_id":"nope"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, q.payloads)
}

func TestHealthz(t *testing.T) {
	_, r := newTestServer(nil, nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzChecks(t *testing.T) {
	shows := &showRepoStub{}
	svc := usecase.NewShowService(shows, &episodeRepoStub{}, &sentimentRepoStub{}, &statsRepoStub{})
	srv := httpserver.NewServer(config.Config{}, svc, &queueStub{},
		func(context.Context) error { return nil },
		func(context.Context) error { return errors.New("redis down") },
		nil)

	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["db"])
	assert.Equal(t, "redis down", body["redis"])
	assert.Equal(t, "skipped", body["queue"])
}
