package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"github.com/showpulse/showpulse/internal/adapter/ai/tokencount"
	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/domain"
)

const sentimentSystemPrompt = `You are a sentiment analysis engine for TV show discussions.
For each numbered text, output one object with fields compound (-1 to 1),
positive, neutral and negative (each 0 to 1, summing to roughly 1).
Respond with ONLY a JSON array, one object per input, in input order.`

// perTextTokenBudget caps how much of one post is included in the prompt.
const perTextTokenBudget = 400

// OpenRouterClient scores batches through an OpenAI-compatible chat
// completions endpoint.
type OpenRouterClient struct {
	cfg     config.Config
	hc      *http.Client
	counter *tokencount.Counter
	valid   *validator.Validate
}

// NewOpenRouterClient constructs a client with timeouts sized for free
// tier models, which can be slow.
func NewOpenRouterClient(cfg config.Config) *OpenRouterClient {
	return &OpenRouterClient{
		cfg:     cfg,
		hc:      &http.Client{Timeout: 120 * time.Second},
		counter: tokencount.NewCounter(),
		valid:   validator.New(),
	}
}

func (c *OpenRouterClient) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// Model identifies the scorer in persisted rows.
func (c *OpenRouterClient) Model() string { return c.cfg.SentimentModel }

// scoredItem is one element of the model's JSON reply. Ranges are
// enforced before anything is persisted.
type scoredItem struct {
	Compound float64 `json:"compound" validate:"gte=-1,lte=1"`
	Positive float64 `json:"positive" validate:"gte=0,lte=1"`
	Neutral  float64 `json:"neutral" validate:"gte=0,lte=1"`
	Negative float64 `json:"negative" validate:"gte=0,lte=1"`
}

// Score sends all texts in one chat completion and parses the JSON array
// reply. The reply must contain exactly one entry per input.
func (c *OpenRouterClient) Score(ctx domain.Context, texts []string) ([]domain.Sentiment, error) {
	if c.cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("%w: OPENROUTER_API_KEY missing", domain.ErrInvalidArgument)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	prompt, err := c.buildPrompt(texts)
	if err != nil {
		return nil, err
	}

	content, err := c.chatJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	items, err := c.parseReply(content, len(texts))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Sentiment, len(items))
	for i, it := range items {
		out[i] = domain.Sentiment{
			Compound: it.Compound,
			Positive: it.Positive,
			Neutral:  it.Neutral,
			Negative: it.Negative,
		}
	}
	return out, nil
}

// buildPrompt numbers the texts, truncating each to the per-text budget
// and the whole prompt to the configured maximum.
func (c *OpenRouterClient) buildPrompt(texts []string) (string, error) {
	var b strings.Builder
	for i, t := range texts {
		t = c.counter.Truncate(t, c.cfg.SentimentModel, perTextTokenBudget)
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.ReplaceAll(t, "\n", " "))
	}
	prompt := b.String()
	n, err := c.counter.CountTokens(prompt, c.cfg.SentimentModel)
	if err != nil {
		return "", fmt.Errorf("op=ai.count_tokens: %w", err)
	}
	if n > c.cfg.SentimentMaxTokens {
		slog.Warn("sentiment prompt over budget, truncating",
			slog.Int("tokens", n), slog.Int("budget", c.cfg.SentimentMaxTokens))
		prompt = c.counter.Truncate(prompt, c.cfg.SentimentModel, c.cfg.SentimentMaxTokens)
	}
	return prompt, nil
}

func (c *OpenRouterClient) chatJSON(ctx domain.Context, userPrompt string) (string, error) {
	reqBody, err := json.Marshal(map[string]any{
		"model": c.cfg.SentimentModel,
		"messages": []map[string]string{
			{"role": "system", "content": sentimentSystemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("op=ai.marshal: %w", err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenRouterBaseURL+"/chat/completions", bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.hc.Do(req)
		observability.UpstreamRequestsTotal.WithLabelValues("openrouter", "chat").Inc()
		observability.UpstreamRequestDuration.WithLabelValues("openrouter", "chat").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("openrouter rate limited", slog.String("model", c.cfg.SentimentModel))
			return fmt.Errorf("chat status 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			snippet := string(body)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			slog.Warn("openrouter 4xx", slog.Int("status", resp.StatusCode), slog.String("body", snippet))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return err
		}
		return nil
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", fmt.Errorf("op=ai.chat: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("op=ai.chat: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}

// parseReply extracts and validates the JSON array from the model reply,
// tolerating markdown fences. A wrong item count is a schema error.
func (c *OpenRouterClient) parseReply(content string, want int) ([]scoredItem, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if i := strings.IndexByte(content, '['); i >= 0 {
		if j := strings.LastIndexByte(content, ']'); j > i {
			content = content[i : j+1]
		}
	}

	var items []scoredItem
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, fmt.Errorf("op=ai.parse: %w: %w", domain.ErrSchemaInvalid, err)
	}
	if len(items) != want {
		return nil, fmt.Errorf("op=ai.parse: got %d items, want %d: %w", len(items), want, domain.ErrSchemaInvalid)
	}
	for i, it := range items {
		if err := c.valid.Struct(it); err != nil {
			return nil, fmt.Errorf("op=ai.parse item=%d: %w: %w", i, domain.ErrSchemaInvalid, err)
		}
	}
	return items, nil
}
