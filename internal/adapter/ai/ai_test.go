package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/domain"
)

func TestVaderClient_Score(t *testing.T) {
	c := NewVaderClient()
	res, err := c.Score(context.Background(), []string{
		"This show is absolutely amazing, best finale ever!",
		"Terrible writing, I hated every minute of it.",
		"The episode aired on Thursday.",
	})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Greater(t, res[0].Compound, 0.3)
	assert.Less(t, res[1].Compound, -0.3)
	assert.InDelta(t, 0, res[2].Compound, 0.3)
	assert.Equal(t, "vader", c.Model())
}

func openRouterCfg(baseURL string) config.Config {
	return config.Config{
		AppEnv:             "test",
		OpenRouterAPIKey:   "sk-test",
		OpenRouterBaseURL:  baseURL,
		SentimentModel:     "meta-llama/llama-3.3-70b-instruct",
		SentimentMaxTokens: 3000,
	}
}

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	require.NoError(t, err)
	return b
}

func TestOpenRouterClient_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write(chatReply(t, `[{"compound":0.8,"positive":0.7,"neutral":0.2,"negative":0.1},
			{"compound":-0.5,"positive":0.1,"neutral":0.3,"negative":0.6}]`))
	}))
	defer srv.Close()

	c := NewOpenRouterClient(openRouterCfg(srv.URL))
	res, err := c.Score(context.Background(), []string{"great show", "awful show"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.InDelta(t, 0.8, res[0].Compound, 1e-9)
	assert.InDelta(t, -0.5, res[1].Compound, 1e-9)
}

func TestOpenRouterClient_Score_FencedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatReply(t, "```json\n[{\"compound\":0.1,\"positive\":0.2,\"neutral\":0.7,\"negative\":0.1}]\n```"))
	}))
	defer srv.Close()

	c := NewOpenRouterClient(openRouterCfg(srv.URL))
	res, err := c.Score(context.Background(), []string{"meh"})
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestOpenRouterClient_Score_WrongCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatReply(t, `[{"compound":0.1,"positive":0.2,"neutral":0.7,"negative":0.1}]`))
	}))
	defer srv.Close()

	c := NewOpenRouterClient(openRouterCfg(srv.URL))
	_, err := c.Score(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestOpenRouterClient_Score_OutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatReply(t, `[{"compound":7.5,"positive":0.2,"neutral":0.7,"negative":0.1}]`))
	}))
	defer srv.Close()

	c := NewOpenRouterClient(openRouterCfg(srv.URL))
	_, err := c.Score(context.Background(), []string{"one"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestOpenRouterClient_Score_MissingKey(t *testing.T) {
	c := NewOpenRouterClient(config.Config{AppEnv: "test", SentimentModel: "m", SentimentMaxTokens: 3000})
	_, err := c.Score(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestOpenRouterClient_Score_RetriesOn500(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(chatReply(t, `[{"compound":0,"positive":0,"neutral":1,"negative":0}]`))
	}))
	defer srv.Close()

	c := NewOpenRouterClient(openRouterCfg(srv.URL))
	_, err := c.Score(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOpenRouterClient_Score_PermanentOn400(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewOpenRouterClient(openRouterCfg(srv.URL))
	_, err := c.Score(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type stubScorer struct {
	model string
	res   []domain.Sentiment
	err   error
}

func (s *stubScorer) Score(_ domain.Context, _ []string) ([]domain.Sentiment, error) {
	return s.res, s.err
}
func (s *stubScorer) Model() string { return s.model }

func TestFallbackClient_PrimaryWins(t *testing.T) {
	primary := &stubScorer{model: "llm", res: []domain.Sentiment{{Compound: 0.5}}}
	secondary := &stubScorer{model: "vader", res: []domain.Sentiment{{Compound: -0.5}}}
	c := NewFallbackClient(primary, secondary)

	res, err := c.Score(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res[0].Compound, 1e-9)
	assert.Equal(t, "llm", c.Model())
}

func TestFallbackClient_FallsBack(t *testing.T) {
	primary := &stubScorer{model: "llm", err: errors.New("quota")}
	secondary := &stubScorer{model: "vader", res: []domain.Sentiment{{Compound: 0.2}}}
	c := NewFallbackClient(primary, secondary)

	res, err := c.Score(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, res[0].Compound, 1e-9)
	assert.Equal(t, "vader", c.Model())
}

func TestFallbackClient_NilPrimary(t *testing.T) {
	secondary := &stubScorer{model: "vader", res: []domain.Sentiment{{}}}
	c := NewFallbackClient(nil, secondary)

	_, err := c.Score(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "vader", c.Model())
}
