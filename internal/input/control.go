package input

import (
	"bufio"
	"context"
	"io"

	"go.uber.org/zap"

	"wisefido-hrv/common/mqtt"
)

// SubscribeControl 订阅 MQTT 控制 topic，payload 为 "start" / "stop"
func SubscribeControl(client *mqtt.Client, topic string, line *Line, logger *zap.Logger) error {
	return client.Subscribe(topic, 1, func(topic string, payload []byte) error {
		t, ok := ParseTrigger(string(payload))
		if !ok {
			logger.Debug("Ignoring unknown control command",
				zap.String("topic", topic),
				zap.ByteString("payload", payload),
			)
			return nil
		}
		if !line.Press(t) {
			logger.Warn("Control event queue full", zap.String("line", line.Name()))
		}
		return nil
	})
}

// ReadConsole 按行读取控制台命令直到 r 结束或 ctx 取消
func ReadConsole(ctx context.Context, r io.Reader, line *Line, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		t, ok := ParseTrigger(scanner.Text())
		if !ok {
			continue
		}
		if !line.Press(t) {
			logger.Warn("Console event queue full")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("Console input closed", zap.Error(err))
	}
}
