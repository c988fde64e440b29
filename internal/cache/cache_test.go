package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis runs a Redis container and returns its URL.
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)
	return endpoint
}

func newCache(t *testing.T, url, namespace string) *cache.RedisCache {
	t.Helper()
	rc, err := cache.NewRedisCache(url, namespace)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	require.NoError(t, rc.Ping(context.Background()))
	return rc
}

func TestRedisCache_CatalogEntryLifecycle(t *testing.T) {
	rc := newCache(t, startRedis(t), cache.DefaultNamespace)
	ctx := context.Background()

	_, found, err := rc.Get(ctx, cache.FactorCatalogKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.Set(ctx, cache.FactorCatalogKey, []byte(`{"factors":[]}`), time.Minute))
	val, found, err := rc.Get(ctx, cache.FactorCatalogKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"factors":[]}`, string(val))

	require.NoError(t, rc.Delete(ctx, cache.FactorCatalogKey))
	_, found, err = rc.Get(ctx, cache.FactorCatalogKey)
	require.NoError(t, err)
	assert.False(t, found)

	// deleting a missing entry is not an error
	assert.NoError(t, rc.Delete(ctx, cache.FactorCatalogKey))
}

func TestRedisCache_EntryExpires(t *testing.T) {
	rc := newCache(t, startRedis(t), cache.DefaultNamespace)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, cache.FactorCatalogKey, []byte("x"), time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, found, err := rc.Get(ctx, cache.FactorCatalogKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_NamespacesAreIsolated(t *testing.T) {
	url := startRedis(t)
	a := newCache(t, url, "tenant-a")
	b := newCache(t, url, "tenant-b")
	raw := newCache(t, url, "")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, cache.FactorCatalogKey, []byte("a"), time.Minute))

	_, found, err := b.Get(ctx, cache.FactorCatalogKey)
	require.NoError(t, err)
	assert.False(t, found)

	val, found, err := raw.Get(ctx, "tenant-a:"+cache.FactorCatalogKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("a"), val)
}

func TestRedisCache_RateWindowCounts(t *testing.T) {
	rc := newCache(t, startRedis(t), cache.DefaultNamespace)
	ctx := context.Background()
	key := cache.RateLimitKey(uuid.New())

	for want := int64(1); want <= 3; want++ {
		got, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRedisCache_RateWindowFixedFromFirstHit(t *testing.T) {
	rc := newCache(t, startRedis(t), cache.DefaultNamespace)
	ctx := context.Background()
	key := cache.RateLimitKey(uuid.New())

	_, err := rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)
	_, err = rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)

	// a second hit does not extend the window, so the counter has reset
	got, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := cache.NewRedisCache("not a url", cache.DefaultNamespace)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keyID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "ratelimit:apikey:22222222-2222-2222-2222-222222222222", cache.RateLimitKey(keyID))
	assert.NotEqual(t, cache.FactorCatalogKey, cache.RateLimitKey(uuid.New()))
}
