package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = Close()
		mr.Close()
	})
	return mr
}

func TestGetSetJSON(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	var out payload
	found, err := GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(ctx, "k", payload{Name: "nova", Count: 3}, time.Minute))
	found, err = GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "nova", Count: 3}, out)
}

func TestHelpers_NoClient(t *testing.T) {
	SetClient(nil)
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, "k", payload{}, time.Minute))
	var out payload
	found, err := GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)

	calls := 0
	hit, err := Aside(ctx, "k", &out, time.Minute, func() error {
		calls++
		out = payload{Name: "db"}
		return nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)
}

func TestAside(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *payload) func() error {
		return func() error {
			calls++
			*dest = payload{Name: "fresh", Count: calls}
			return nil
		}
	}

	var first payload
	hit, err := Aside(ctx, "aside", &first, time.Minute, fetch(&first))
	require.NoError(t, err)
	assert.False(t, hit)

	var second payload
	hit, err = Aside(ctx, "aside", &second, time.Minute, fetch(&second))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	var third payload
	_, err = Aside(ctx, "other", &third, time.Minute, func() error { return errors.New("db down") })
	assert.Error(t, err)
}

func TestFeedKey_ChangesAfterInvalidate(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	before := FeedKey(ctx, 7, 20, 0)
	assert.Equal(t, "feed:0:7:20:0", before)

	InvalidateFeeds(ctx)
	after := FeedKey(ctx, 7, 20, 0)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "1", mustGet(t, mr, feedGenerationKey))
}

func TestInvalidate(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, AccountKey(3), payload{Name: "x"}, AccountTTL))
	assert.True(t, mr.Exists(AccountKey(3)))
	InvalidateAccount(ctx, 3)
	assert.False(t, mr.Exists(AccountKey(3)))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
