package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/domain"
	"github.com/showpulse/showpulse/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Shows      usecase.ShowService
	Queue      domain.Queue
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	QueueCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, shows usecase.ShowService, q domain.Queue, dbCheck, redisCheck, queueCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Shows: shows, Queue: q, DBCheck: dbCheck, RedisCheck: redisCheck, QueueCheck: queueCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type showDTO struct {
	ID             string   `json:"id"`
	IMDbID         string   `json:"imdb_id"`
	Title          string   `json:"title"`
	OriginalTitle  *string  `json:"original_title,omitempty"`
	StartYear      int      `json:"start_year"`
	EndYear        *int     `json:"end_year,omitempty"`
	RuntimeMinutes *int     `json:"runtime_minutes,omitempty"`
	Genres         []string `json:"genres"`
	AverageRating  *float64 `json:"average_rating,omitempty"`
	NumVotes       int      `json:"num_votes"`
}

func toShowDTO(s domain.Show) showDTO {
	genres := s.Genres
	if genres == nil {
		genres = []string{}
	}
	return showDTO{
		ID:             s.ID,
		IMDbID:         s.IMDbID,
		Title:          s.Title,
		OriginalTitle:  s.OriginalTitle,
		StartYear:      s.StartYear,
		EndYear:        s.EndYear,
		RuntimeMinutes: s.RuntimeMinutes,
		Genres:         genres,
		AverageRating:  s.AverageRating,
		NumVotes:       s.NumVotes,
	}
}

type episodeDTO struct {
	ID            string   `json:"id"`
	IMDbID        string   `json:"imdb_id"`
	SeasonNumber  int      `json:"season_number"`
	EpisodeNumber int      `json:"episode_number"`
	AverageRating *float64 `json:"average_rating,omitempty"`
	NumVotes      *int     `json:"num_votes,omitempty"`
}

type sentimentScoreDTO struct {
	PostID     string    `json:"post_id"`
	Compound   float64   `json:"compound"`
	Positive   float64   `json:"positive"`
	Neutral    float64   `json:"neutral"`
	Negative   float64   `json:"negative"`
	Model      string    `json:"model"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

type showStatsDTO struct {
	ShowID          string     `json:"show_id"`
	PostCount       int64      `json:"post_count"`
	AnalyzedCount   int64      `json:"analyzed_count"`
	MeanCompound    float64    `json:"mean_compound"`
	LastCollectedAt *time.Time `json:"last_collected_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ListShowsHandler serves the paginated catalog ordered by vote count.
func (s *Server) ListShowsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", 0)
		genre := r.URL.Query().Get("genre")

		page, err := s.Shows.List(r.Context(), offset, limit, genre)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make([]showDTO, 0, len(page.Shows))
		for _, sh := range page.Shows {
			items = append(items, toShowDTO(sh))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"shows":  items,
			"total":  page.Total,
			"offset": page.Offset,
			"limit":  page.Limit,
		})
	}
}

// GetShowHandler serves a single show by id.
func (s *Server) GetShowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sh, err := s.Shows.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toShowDTO(sh))
	}
}

// ListEpisodesHandler serves a show's episodes, optionally one season.
func (s *Server) ListEpisodesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		season := queryInt(r, "season", 0)
		if season < 0 {
			writeError(w, r, fmt.Errorf("%w: season must be positive", domain.ErrInvalidArgument), nil)
			return
		}
		eps, err := s.Shows.EpisodeList(r.Context(), chi.URLParam(r, "id"), season)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make([]episodeDTO, 0, len(eps))
		for _, e := range eps {
			items = append(items, episodeDTO{
				ID:            e.ID,
				IMDbID:        e.IMDbID,
				SeasonNumber:  e.SeasonNumber,
				EpisodeNumber: e.EpisodeNumber,
				AverageRating: e.AverageRating,
				NumVotes:      e.NumVotes,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"episodes": items})
	}
}

// GetSentimentHandler serves a show's aggregate sentiment plus recent scores.
func (s *Server) GetSentimentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 0)
		sum, err := s.Shows.Sentiment(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		recent := make([]sentimentScoreDTO, 0, len(sum.Recent))
		for _, sc := range sum.Recent {
			recent = append(recent, sentimentScoreDTO{
				PostID:     sc.PostID,
				Compound:   sc.Compound,
				Positive:   sc.Positive,
				Neutral:    sc.Neutral,
				Negative:   sc.Negative,
				Model:      sc.Model,
				AnalyzedAt: sc.AnalyzedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stats": showStatsDTO{
				ShowID:          sum.Stats.ShowID,
				PostCount:       sum.Stats.PostCount,
				AnalyzedCount:   sum.Stats.AnalyzedCount,
				MeanCompound:    sum.Stats.MeanCompound,
				LastCollectedAt: sum.Stats.LastCollectedAt,
				UpdatedAt:       sum.Stats.UpdatedAt,
			},
			"recent": recent,
		})
	}
}

type analyzeRequest struct {
	ShowID  string   `json:"show_id" validate:"required"`
	PostIDs []string `json:"post_ids" validate:"omitempty,dive,required"`
}

// AnalyzeHandler queues a show's posts for sentiment (re-)analysis.
// Admin-only; the worker picks the task up asynchronously.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		// Reject unknown shows before queuing.
		if _, err := s.Shows.Get(r.Context(), req.ShowID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		reqID, err := s.Queue.EnqueueAnalyze(r.Context(), domain.AnalyzeTaskPayload{
			ShowID:    req.ShowID,
			PostIDs:   req.PostIDs,
			RequestID: uuid.New().String(),
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"show_id":    req.ShowID,
			"request_id": reqID,
			"status":     "queued",
		})
	}
}

// HealthzHandler is the liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports readiness of the server's dependencies. Any
// failing check yields 503 with the per-dependency status.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]func(context.Context) error{
			"db":    s.DBCheck,
			"redis": s.RedisCheck,
			"queue": s.QueueCheck,
		}
		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				result[name] = "skipped"
				continue
			}
			if err := check(ctx); err != nil {
				result[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		writeJSON(w, status, result)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
