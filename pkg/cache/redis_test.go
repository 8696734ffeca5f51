package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

type item struct {
	Name    string `json:"name"`
	Cartons int64  `json:"cartons"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "wms", time.Minute, logger.Nop()), mr
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	var got item
	assert.False(t, c.GetJSON(ctx, "balance:a", &got))

	gen, ok := c.Generation(ctx, "balance:a")
	require.True(t, ok)
	assert.Empty(t, gen)

	require.True(t, c.SetJSONIfGeneration(ctx, "balance:a", gen, item{Name: "a", Cartons: 70}))
	require.True(t, c.GetJSON(ctx, "balance:a", &got))
	assert.Equal(t, item{Name: "a", Cartons: 70}, got)
	assert.True(t, mr.Exists("wms:balance:a"))

	c.Invalidate(ctx, "balance:a")
	assert.False(t, c.GetJSON(ctx, "balance:a", &got))
}

func TestCache_InvalidationDuringLoadSkipsWrite(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	stale, ok := c.Generation(ctx, "k")
	require.True(t, ok)

	c.Invalidate(ctx, "k")
	assert.False(t, c.SetJSONIfGeneration(ctx, "k", stale, item{Name: "old"}))
	assert.False(t, mr.Exists("wms:k"))

	fresh, ok := c.Generation(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "1", fresh)
	assert.True(t, c.SetJSONIfGeneration(ctx, "k", fresh, item{Name: "new"}))

	var got item
	require.True(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, 2*time.Minute, mr.TTL("wms:k:gen"))
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.True(t, c.SetJSONIfGeneration(ctx, "k", "", item{Name: "k"}))
	mr.FastForward(2 * time.Minute)

	var got item
	assert.False(t, c.GetJSON(ctx, "k", &got))
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, mr.Set("wms:k", "{not json"))
	var got item
	assert.False(t, c.GetJSON(ctx, "k", &got))
}

func TestCache_NilIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var got item
	assert.False(t, c.GetJSON(ctx, "k", &got))
	_, ok := c.Generation(ctx, "k")
	assert.False(t, ok)
	assert.False(t, c.SetJSONIfGeneration(ctx, "k", "", item{}))
	c.Invalidate(ctx, "k")
	assert.Equal(t, "disabled", c.Health(ctx)["status"])
}
