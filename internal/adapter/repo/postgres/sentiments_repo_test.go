package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showpulse/showpulse/internal/adapter/repo/postgres"
	"github.com/showpulse/showpulse/internal/domain"
)

func TestSentimentRepo_Upsert_OK(t *testing.T) {
	repo := postgres.NewSentimentRepo(&poolStub{})
	err := repo.Upsert(context.Background(), domain.SentimentScore{
		PostID:   "post-1",
		ShowID:   "show-1",
		Compound: 0.73,
		Positive: 0.4,
		Neutral:  0.5,
		Negative: 0.1,
		Model:    "vader",
	})
	require.NoError(t, err)
}

func TestSentimentRepo_Upsert_Error(t *testing.T) {
	repo := postgres.NewSentimentRepo(&poolStub{execErr: errors.New("fk violation")})
	err := repo.Upsert(context.Background(), domain.SentimentScore{PostID: "post-1", ShowID: "show-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=sentiment.upsert")
}

func TestSentimentRepo_ListByShow(t *testing.T) {
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		func(dest ...any) error {
			*(dest[0].(*string)) = "sc-1"
			*(dest[1].(*string)) = "post-1"
			*(dest[2].(*string)) = "show-1"
			*(dest[3].(*float64)) = -0.42
			*(dest[7].(*string)) = "vader"
			return nil
		},
	}}}
	repo := postgres.NewSentimentRepo(pool)

	scores, err := repo.ListByShow(context.Background(), "show-1", 10)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.InDelta(t, -0.42, scores[0].Compound, 1e-9)
}

func TestStatsRepo_Refresh(t *testing.T) {
	now := time.Now().UTC()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "show-1"
		*(dest[1].(*int64)) = 120
		*(dest[2].(*int64)) = 100
		*(dest[3].(*float64)) = 0.31
		*(dest[5].(*time.Time)) = now
		return nil
	}}}
	repo := postgres.NewStatsRepo(pool)

	st, err := repo.Refresh(context.Background(), "show-1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), st.PostCount)
	assert.Equal(t, int64(100), st.AnalyzedCount)
	assert.InDelta(t, 0.31, st.MeanCompound, 1e-9)
}

func TestStatsRepo_Get_NotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgxNoRows() }}}
	repo := postgres.NewStatsRepo(pool)

	_, err := repo.Get(context.Background(), "show-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
