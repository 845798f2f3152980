package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-hrv/common/config"
)

func setupTestRedis(t *testing.T) *Client {
	mr := miniredis.RunT(t)
	client := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = Close(client) })
	return client
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, Ping(ctx, client))

	id, err := PublishToStream(ctx, client, "hrv:test", map[string]interface{}{
		"ppi":   800,
		"sdnn":  12.5,
		"label": "normal",
		"ok":    true,
		"list":  []int{800, 820},
	}, StreamOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "hrv:test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "800", msgs[0].Values["ppi"])
	assert.Equal(t, "12.5", msgs[0].Values["sdnn"])
	assert.Equal(t, "normal", msgs[0].Values["label"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
	assert.Equal(t, "[800,820]", msgs[0].Values["list"])
}

func TestPublishJSONToStream(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	_, err := PublishJSONToStream(ctx, client, "hrv:test", map[string]float64{"mean_hr": 75}, StreamOptions{MaxLen: 100})
	require.NoError(t, err)

	msgs, err := client.XRange(ctx, "hrv:test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"mean_hr":75}`, msgs[0].Values["data"].(string))
	assert.NotEmpty(t, msgs[0].Values["timestamp"])
}
