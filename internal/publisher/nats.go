package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"wisefido-hrv/internal/models"
)

// ConnectNATS 连接 NATS，断线后无限重连
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// NATSPublisher 通过 NATS subject 发布 JSON 消息
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher 创建 NATS 发布器
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish 发布到 subject 并等待服务端确认收到
func (p *NATSPublisher) Publish(ctx context.Context, subject string, msg models.Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("%w: nats subject %s: %v", ErrPublishFailure, subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: nats flush: %v", ErrPublishFailure, err)
	}
	return nil
}

// Close 关闭连接
func (p *NATSPublisher) Close() {
	p.conn.Close()
}
