package publisher

import (
	"context"
	"fmt"

	"wisefido-hrv/common/mqtt"
	"wisefido-hrv/internal/models"
)

// MQTTPublisher 通过 MQTT 发布 JSON 消息
type MQTTPublisher struct {
	client *mqtt.Client
	qos    byte
}

// NewMQTTPublisher 创建 MQTT 发布器
func NewMQTTPublisher(client *mqtt.Client, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, qos: qos}
}

// Publish 发布到 topic
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailure, err)
	}
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := p.client.Publish(topic, p.qos, false, payload); err != nil {
		return fmt.Errorf("%w: mqtt topic %s: %v", ErrPublishFailure, topic, err)
	}
	return nil
}
