//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return addr
}

func TestRedisClient_GetSetDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c, err := NewRedisClient(RedisConfig{Addr: startRedis(t)})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "search:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "search:b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "other", []byte("3"), time.Minute))

	v, err := c.Get(ctx, "search:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, c.DeleteByPrefix(ctx, "search:"))
	_, err = c.Get(ctx, "search:b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "other")
	assert.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "other"))
	_, err = c.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisClient_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	addr := startRedis(t)

	sub, err := NewRedisClient(RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer sub.Close()
	pub, err := NewRedisClient(RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer pub.Close()

	msgs, unsubscribe, err := sub.Subscribe(ctx, ChannelVenuesUpdated)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, pub.Publish(ctx, ChannelVenuesUpdated, map[string]int{"count": 3}))

	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"count":3}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
