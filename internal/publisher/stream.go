package publisher

import (
	"context"
	"fmt"

	"wisefido-hrv/common/redis"
	"wisefido-hrv/internal/models"
)

// StreamPublisher 写入 Redis Streams。stream 非空时忽略 destination，
// 所有消息写入同一个 stream。
type StreamPublisher struct {
	client *redis.Client
	stream string
	opts   redis.StreamOptions
}

// NewStreamPublisher 创建 Redis Streams 发布器
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		opts:   redis.StreamOptions{MaxLen: maxLen},
	}
}

// Publish 以 data/timestamp 字段写入一条记录
func (p *StreamPublisher) Publish(ctx context.Context, destination string, msg models.Message) error {
	stream := p.stream
	if stream == "" {
		stream = destination
	}
	if _, err := redis.PublishJSONToStream(ctx, p.client, stream, msg, p.opts); err != nil {
		return fmt.Errorf("%w: redis stream %s: %v", ErrPublishFailure, stream, err)
	}
	return nil
}
