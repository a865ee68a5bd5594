// Package ai provides sentiment scoring clients: an OpenRouter-backed LLM
// scorer and a local VADER lexicon fallback.
package ai

import (
	"github.com/jonreiter/govader"

	"github.com/showpulse/showpulse/internal/domain"
)

// VaderClient scores text locally with the VADER sentiment lexicon. It
// never fails and needs no network, so it doubles as the fallback when
// the LLM path is unavailable.
type VaderClient struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVaderClient constructs a VaderClient.
func NewVaderClient() *VaderClient {
	return &VaderClient{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score computes polarity scores for each text.
func (c *VaderClient) Score(_ domain.Context, texts []string) ([]domain.Sentiment, error) {
	out := make([]domain.Sentiment, len(texts))
	for i, text := range texts {
		s := c.analyzer.PolarityScores(text)
		out[i] = domain.Sentiment{
			Compound: s.Compound,
			Positive: s.Positive,
			Neutral:  s.Neutral,
			Negative: s.Negative,
		}
	}
	return out, nil
}

// Model identifies the scorer in persisted rows.
func (c *VaderClient) Model() string { return "vader" }
