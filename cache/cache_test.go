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

type record struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// fakeClock drives MemoryBackend expiry.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMemoryCache(ttl time.Duration) (*Cache, *MemoryBackend, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	backend := NewMemoryBackend()
	backend.now = clock.now
	return New(backend, "content", ttl), backend, clock
}

func TestGetOrLoad_MissThenHit(t *testing.T) {
	c, backend, _ := newMemoryCache(time.Minute)
	ctx := context.Background()
	key := Key{RecordID: "rec-1", TenantID: "tenant-1"}

	calls := 0
	loader := func(context.Context) (record, error) {
		calls++
		return record{ID: "rec-1", Title: "intro"}, nil
	}

	first, err := GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)
	second, err := GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "second read should be served from cache")
	assert.Equal(t, 1, backend.Len())
}

func TestGetOrLoad_TenantIsPartOfKey(t *testing.T) {
	c, _, _ := newMemoryCache(time.Minute)
	ctx := context.Background()

	load := func(title string) func(context.Context) (record, error) {
		return func(context.Context) (record, error) { return record{ID: "rec-1", Title: title}, nil }
	}

	a, err := GetOrLoad(ctx, c, Key{RecordID: "rec-1", TenantID: "tenant-a"}, c.TTL(), load("a"))
	require.NoError(t, err)
	b, err := GetOrLoad(ctx, c, Key{RecordID: "rec-1", TenantID: "tenant-b"}, c.TTL(), load("b"))
	require.NoError(t, err)

	assert.Equal(t, "a", a.Title)
	assert.Equal(t, "b", b.Title)
}

func TestGetOrLoad_StaleUntilTTLExpires(t *testing.T) {
	c, _, clock := newMemoryCache(time.Minute)
	ctx := context.Background()
	key := Key{RecordID: "rec-1", TenantID: "tenant-1"}

	stored := record{ID: "rec-1", Title: "v1"}
	loader := func(context.Context) (record, error) { return stored, nil }

	got, err := GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title)

	// a write to the source of truth does not touch the cache
	stored.Title = "v2"
	clock.advance(30 * time.Second)
	got, err = GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title, "read within TTL may be stale")

	clock.advance(31 * time.Second)
	got, err = GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title, "read after TTL reflects the latest value")
}

func TestGetOrLoad_LoaderErrorNotCached(t *testing.T) {
	c, backend, _ := newMemoryCache(time.Minute)
	ctx := context.Background()
	key := Key{RecordID: "missing", TenantID: "tenant-1"}
	errNotFound := errors.New("not found")

	_, err := GetOrLoad(ctx, c, key, c.TTL(), func(context.Context) (record, error) {
		return record{}, errNotFound
	})
	require.ErrorIs(t, err, errNotFound)
	assert.Equal(t, 0, backend.Len())
}

func TestGetOrLoad_NilCacheLoadsDirectly(t *testing.T) {
	var c *Cache
	calls := 0
	for i := 0; i < 3; i++ {
		_, err := GetOrLoad(context.Background(), c, Key{RecordID: "r", TenantID: "t"}, time.Minute,
			func(context.Context) (record, error) {
				calls++
				return record{ID: "r"}, nil
			})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

type brokenBackend struct{ sets int }

func (b *brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (b *brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	b.sets++
	return errors.New("connection refused")
}

func TestGetOrLoad_BackendFailureDegradesToLoader(t *testing.T) {
	backend := &brokenBackend{}
	c := New(backend, "content", time.Minute)

	got, err := GetOrLoad(context.Background(), c, Key{RecordID: "r", TenantID: "t"}, c.TTL(),
		func(context.Context) (record, error) { return record{ID: "r", Title: "fresh"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Title)
	assert.Equal(t, 1, backend.sets)
}

func TestMemoryBackend_Sweep(t *testing.T) {
	_, backend, clock := newMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, backend.Set(ctx, "long", []byte("2"), time.Hour))

	clock.advance(2 * time.Second)
	assert.Equal(t, 1, backend.Sweep())
	assert.Equal(t, 1, backend.Len())

	_, found, err := backend.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRedisBackend_GetOrLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := New(NewRedisBackend(client), "content", time.Minute)
	ctx := context.Background()
	key := Key{RecordID: "rec-1", TenantID: "tenant-1"}

	calls := 0
	loader := func(context.Context) (record, error) {
		calls++
		return record{ID: "rec-1", Title: "intro"}, nil
	}

	_, err := GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)
	assert.True(t, mr.Exists("content:rec-1:tenant-1"))
	assert.Equal(t, time.Minute, mr.TTL("content:rec-1:tenant-1"))

	_, err = GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	mr.FastForward(2 * time.Minute)
	_, err = GetOrLoad(ctx, c, key, c.TTL(), loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expired entry should be reloaded")
}

func TestRedisBackend_Unavailable(t *testing.T) {
	// nothing listens on port 1
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: time.Second})
	t.Cleanup(func() { client.Close() })

	c := New(NewRedisBackend(client), "content", time.Minute)
	got, err := GetOrLoad(context.Background(), c, Key{RecordID: "r", TenantID: "t"}, c.TTL(),
		func(context.Context) (record, error) { return record{ID: "r"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "r", got.ID)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	client.Close()

	// the client is handed back even when the PING fails
	client, err = DialRedis(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
	require.NotNil(t, client)
	client.Close()
}
