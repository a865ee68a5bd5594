package redpanda

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/domain"
	obsctx "github.com/showpulse/showpulse/internal/observability"
)

// TaskHandler processes one decoded analyze task. Returning an error marks
// the task failed; the record is still committed, failed posts are picked
// up again by the next collection sweep.
type TaskHandler interface {
	HandleAnalyzeTask(ctx domain.Context, payload domain.AnalyzeTaskPayload) error
}

// Consumer is a consumer-group reader for the analyze topic with a
// bounded worker pool.
type Consumer struct {
	client      *kgo.Client
	handler     TaskHandler
	groupID     string
	topic       string
	concurrency int
}

// NewConsumer constructs a Consumer on the analyze topic.
func NewConsumer(brokers []string, groupID string, handler TaskHandler, concurrency int) (*Consumer, error) {
	return newConsumer(brokers, groupID, TopicAnalyze, handler, concurrency)
}

func newConsumer(brokers []string, groupID, topic string, handler TaskHandler, concurrency int) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 2
	}

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, err
	}

	if err := createTopicIfNotExists(context.Background(), client, topic, 1, 1); err != nil {
		slog.Warn("topic creation failed, it may already exist",
			slog.String("topic", topic), slog.Any("error", err))
	}

	return &Consumer{
		client:      client,
		handler:     handler,
		groupID:     groupID,
		topic:       topic,
		concurrency: concurrency,
	}, nil
}

// Start polls until the context is cancelled. Records are handled by at
// most concurrency workers at a time.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("consumer started",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic),
		slog.Int("concurrency", c.concurrency))

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				c.processRecord(ctx, rec)
				c.client.MarkCommitRecords(rec)
			}()
		})
	}

	wg.Wait()
	slog.Info("consumer stopped", slog.String("group_id", c.groupID))
	return ctx.Err()
}

func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) {
	var payload domain.AnalyzeTaskPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil {
		slog.Error("malformed analyze task dropped",
			slog.Int64("offset", rec.Offset), slog.Any("error", err))
		observability.JobsFailedTotal.WithLabelValues("analyze").Inc()
		return
	}

	if payload.RequestID != "" {
		ctx = obsctx.ContextWithRequestID(ctx, payload.RequestID)
	}

	observability.JobsProcessing.WithLabelValues("analyze").Inc()
	defer observability.JobsProcessing.WithLabelValues("analyze").Dec()

	start := time.Now()
	if err := c.handler.HandleAnalyzeTask(ctx, payload); err != nil {
		slog.Error("analyze task failed",
			slog.String("show_id", payload.ShowID),
			slog.Duration("took", time.Since(start)),
			slog.Any("error", err))
		observability.JobsFailedTotal.WithLabelValues("analyze").Inc()
		return
	}
	observability.JobsCompletedTotal.WithLabelValues("analyze").Inc()
	slog.Info("analyze task done",
		slog.String("show_id", payload.ShowID),
		slog.Int("posts", len(payload.PostIDs)),
		slog.Duration("took", time.Since(start)))
}

// Close closes the underlying client.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
