package mqtt

import (
	"fmt"
	"net"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-hrv/common/config"
)

// startBroker 启动进程内 MQTT broker，返回连接地址
func startBroker(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "test",
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	return fmt.Sprintf("tcp://%s", addr)
}

func newTestClient(t *testing.T, broker, id string) *Client {
	t.Helper()
	c, err := NewClient(&config.MQTTConfig{
		Broker:         broker,
		ClientID:       id,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func TestClient_PublishSubscribe(t *testing.T) {
	broker := startBroker(t)

	sub := newTestClient(t, broker, "sub")
	pub := newTestClient(t, broker, "pub")
	require.True(t, pub.IsConnected())

	received := make(chan []byte, 1)
	require.NoError(t, sub.Subscribe("hrv/test", 1, func(topic string, payload []byte) error {
		received <- payload
		return nil
	}))

	require.NoError(t, pub.Publish("hrv/test", 1, false, []byte(`{"ppi":800}`)))

	select {
	case payload := <-received:
		require.JSONEq(t, `{"ppi":800}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, sub.Unsubscribe("hrv/test"))
}

func TestNewClient_UnreachableBroker(t *testing.T) {
	_, err := NewClient(&config.MQTTConfig{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "nobody",
		ConnectTimeout: time.Second,
	}, nil)
	require.Error(t, err)
}
