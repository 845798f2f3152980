// Package publisher 把实时 PPI 和会话结果发布到消息总线（MQTT、NATS、Redis Streams）。
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wisefido-hrv/internal/models"
)

// ErrPublishFailure 发布失败；只记录日志，不影响会话状态
var ErrPublishFailure = errors.New("publisher: publish failed")

// Publisher 发布接口，destination 为 topic / subject / stream
type Publisher interface {
	Publish(ctx context.Context, destination string, msg models.Message) error
}

// Encode 消息序列化为 JSON
func Encode(msg models.Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrPublishFailure, err)
	}
	return b, nil
}

// Nop 不发布（PUBLISH_TRANSPORT=none）
type Nop struct{}

// Publish 直接返回
func (Nop) Publish(context.Context, string, models.Message) error { return nil }

// Multi 扇出到多个 Publisher，单个失败不影响其余
type Multi []Publisher

// Publish 依次发布，汇总所有错误
func (m Multi) Publish(ctx context.Context, destination string, msg models.Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, destination, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPublishFailure, errors.Join(errs...))
}
