// Package domain defines the core entities, ports, and error taxonomy.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Show is a TV series ingested from the IMDb datasets.
// Invariants: IMDbID is a non-empty tconst ("tt..."); StartYear >= 1990 for
// ingested rows; Genres never nil once cleaned.
type Show struct {
	ID             string
	IMDbID         string
	Title          string
	OriginalTitle  *string
	StartYear      int
	EndYear        *int
	RuntimeMinutes *int
	Genres         []string
	AverageRating  *float64
	NumVotes       int
	CreatedAt      time.Time
}

// Episode belongs to a show. Rows without a season or episode number are
// dropped during ingestion.
type Episode struct {
	ID            string
	ShowID        string
	IMDbID        string
	SeasonNumber  int
	EpisodeNumber int
	AverageRating *float64
	NumVotes      *int
	CreatedAt     time.Time
}

// RedditPost is a collected discussion about a show.
type RedditPost struct {
	ID           string
	ShowID       string
	RedditID     string
	Title        string
	Body         string
	Score        int
	UpvoteRatio  float64
	NumComments  int
	Subreddit    string
	Author       string
	URL          string
	IsDiscussion bool
	PostedAt     time.Time
	CreatedAt    time.Time
}

// SentimentScore holds the scored sentiment for a single post.
// Compound is in [-1,1]; Positive/Neutral/Negative are fractions in [0,1].
type SentimentScore struct {
	ID         string
	PostID     string
	ShowID     string
	Compound   float64
	Positive   float64
	Neutral    float64
	Negative   float64
	Model      string
	AnalyzedAt time.Time
}

// ShowStats is the per-show aggregate refreshed after each analysis batch.
type ShowStats struct {
	ShowID          string
	PostCount       int64
	AnalyzedCount   int64
	MeanCompound    float64
	LastCollectedAt *time.Time
	UpdatedAt       time.Time
}

// AnalyzeTaskPayload is the queued unit of sentiment work.
type AnalyzeTaskPayload struct {
	ShowID    string   `json:"show_id"`
	PostIDs   []string `json:"post_ids"`
	RequestID string   `json:"request_id,omitempty"`
}

// Repositories (ports)

type ShowRepository interface {
	Upsert(ctx Context, s Show) (string, error)
	Get(ctx Context, id string) (Show, error)
	GetByIMDbID(ctx Context, imdbID string) (Show, error)
	List(ctx Context, offset, limit int, genre string) ([]Show, error)
	Count(ctx Context) (int64, error)
}

type EpisodeRepository interface {
	UpsertBatch(ctx Context, eps []Episode) (int, error)
	ListByShow(ctx Context, showID string, season int) ([]Episode, error)
}

type PostRepository interface {
	UpsertBatch(ctx Context, posts []RedditPost) (int, error)
	Get(ctx Context, id string) (RedditPost, error)
	ListUnanalyzed(ctx Context, showID string, limit int) ([]RedditPost, error)
	CountByShow(ctx Context, showID string) (int64, error)
}

type SentimentRepository interface {
	Upsert(ctx Context, s SentimentScore) error
	ListByShow(ctx Context, showID string, limit int) ([]SentimentScore, error)
}

type StatsRepository interface {
	Refresh(ctx Context, showID string) (ShowStats, error)
	Get(ctx Context, showID string) (ShowStats, error)
}

// Queue (port)

type Queue interface {
	EnqueueAnalyze(ctx Context, payload AnalyzeTaskPayload) (string, error)
}

// SentimentClient scores a batch of texts. Implementations may call an LLM
// API or use a local lexicon; order of results matches the input order.
type SentimentClient interface {
	Score(ctx Context, texts []string) ([]Sentiment, error)
	Model() string
}

// Sentiment is a raw polarity result independent of storage identifiers.
type Sentiment struct {
	Compound float64 `json:"compound"`
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Context aliases context.Context; adapters and usecases pass it through.
type Context = context.Context
