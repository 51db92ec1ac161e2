package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Producer publishes automation triggers for downstream workflows.
type Producer interface {
	Enqueue(ctx context.Context, event TriggerEvent) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, event TriggerEvent) error {
	fields := event.values()

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", event.Kind(), err)
	}

	p.logger.InfoContext(ctx, "enqueued automation trigger",
		"stream_id", id,
		"kind", event.Kind(),
		"source", fields["source"],
		"command", fields["command"],
		"repository", fields["repository"],
		"issue_number", fields["issue_number"],
	)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
