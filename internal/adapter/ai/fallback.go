package ai

import (
	"log/slog"

	"github.com/showpulse/showpulse/internal/domain"
)

// FallbackClient tries the primary scorer and falls back to the secondary
// when it fails. Model() reports whichever scorer produced the last batch,
// so the persisted model column stays truthful.
type FallbackClient struct {
	primary   domain.SentimentClient
	secondary domain.SentimentClient
	lastModel string
}

// NewFallbackClient wires primary and secondary scorers. A nil primary
// means only the secondary is used.
func NewFallbackClient(primary, secondary domain.SentimentClient) *FallbackClient {
	model := secondary.Model()
	if primary != nil {
		model = primary.Model()
	}
	return &FallbackClient{primary: primary, secondary: secondary, lastModel: model}
}

// Score runs the primary scorer, then the secondary on failure.
func (c *FallbackClient) Score(ctx domain.Context, texts []string) ([]domain.Sentiment, error) {
	if c.primary != nil {
		res, err := c.primary.Score(ctx, texts)
		if err == nil {
			c.lastModel = c.primary.Model()
			return res, nil
		}
		slog.Warn("primary sentiment scorer failed, using fallback",
			slog.String("primary", c.primary.Model()),
			slog.String("fallback", c.secondary.Model()),
			slog.Any("error", err))
	}
	res, err := c.secondary.Score(ctx, texts)
	if err == nil {
		c.lastModel = c.secondary.Model()
	}
	return res, err
}

// Model reports the scorer used for the most recent batch.
func (c *FallbackClient) Model() string { return c.lastModel }
