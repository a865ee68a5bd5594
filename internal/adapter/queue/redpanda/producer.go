// Package redpanda provides the Redpanda/Kafka queue integration that
// connects the collector to the sentiment workers. Publishing is
// transactional so an analyze task is either fully enqueued or not at all.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/domain"
)

// TopicAnalyze carries sentiment analysis tasks.
const TopicAnalyze = "analyze-posts"

// Producer wraps a transactional Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	topic  string
	// transactions are serialized through this buffered channel
	txLock chan struct{}
}

// NewProducer constructs a Producer and ensures the analyze topic exists.
func NewProducer(brokers []string) (*Producer, error) {
	return newProducer(brokers, "showpulse-producer", TopicAnalyze)
}

func newProducer(brokers []string, transactionalID, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, topic, 1, 1); err != nil {
		slog.Warn("topic creation failed, it may already exist",
			slog.String("topic", topic), slog.Any("error", err))
	}

	return &Producer{
		client: client,
		topic:  topic,
		txLock: make(chan struct{}, 1),
	}, nil
}

// EnqueueAnalyze publishes one analyze task keyed by show id and returns
// the task's request id.
func (p *Producer) EnqueueAnalyze(ctx domain.Context, payload domain.AnalyzeTaskPayload) (string, error) {
	select {
	case p.txLock <- struct{}{}:
		defer func() { <-p.txLock }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return "", fmt.Errorf("op=queue.begin: %w", err)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		p.abort(ctx)
		return "", fmt.Errorf("op=queue.marshal: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(payload.ShowID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "show_id", Value: []byte(payload.ShowID)},
			{Key: "request_id", Value: []byte(payload.RequestID)},
		},
	}

	promise := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, promise.Promise())
	if err := promise.Err(); err != nil {
		p.abort(ctx)
		return "", fmt.Errorf("op=queue.produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return "", fmt.Errorf("op=queue.commit: %w", err)
	}

	observability.JobsEnqueuedTotal.WithLabelValues("analyze").Inc()
	slog.Info("analyze task enqueued",
		slog.String("show_id", payload.ShowID),
		slog.Int("posts", len(payload.PostIDs)))
	return payload.RequestID, nil
}

func (p *Producer) abort(ctx context.Context) {
	if err := p.client.EndTransaction(ctx, kgo.TryAbort); err != nil {
		slog.Error("failed to abort transaction", slog.Any("error", err))
	}
}

// Ping checks broker connectivity for readiness probes.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
