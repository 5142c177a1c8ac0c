package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishToStream_StringifiesValues(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	_, err := PublishToStream(ctx, client, "s", 0, map[string]interface{}{
		"count": 3,
		"ok":    true,
		"tags":  []string{"a"},
	})
	require.NoError(t, err)

	msgs, err := client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "3", msgs[0].Values["count"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
	assert.Equal(t, `["a"]`, msgs[0].Values["tags"])
}
