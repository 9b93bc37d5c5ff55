package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryCache(Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	})
	require.NoError(t, err)

	// 测试Set和Get
	require.NoError(t, cache.Set(ctx, "key1", "value1", 0))

	val, found, err := cache.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	// 测试不存在的键
	val, found, err = cache.Get(ctx, "non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	// 测试过期
	require.NoError(t, cache.Set(ctx, "expire-soon", "temp-value", time.Millisecond*200))
	time.Sleep(time.Millisecond * 400)

	_, found, err = cache.Get(ctx, "expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 测试删除
	require.NoError(t, cache.Set(ctx, "to-delete", "delete-me", 0))
	require.NoError(t, cache.Delete(ctx, "to-delete"))

	_, found, err = cache.Get(ctx, "to-delete")
	assert.NoError(t, err)
	assert.False(t, found)

	// 测试清空
	require.NoError(t, cache.Set(ctx, "key2", "value2", 0))
	require.NoError(t, cache.Clear(ctx))

	_, found, err = cache.Get(ctx, "key2")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheSetNX(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryCache(DefaultConfig())
	require.NoError(t, err)

	ok, err := cache.SetNX(ctx, "job", "first", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.SetNX(ctx, "job", "second", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	val, _, _ := cache.Get(ctx, "job")
	assert.Equal(t, "first", val)
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisCache(Config{
		Type:       "redis",
		RedisAddr:  mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)
	defer cache.(*RedisCache).Close()

	require.NoError(t, cache.Set(ctx, "redis-key1", "redis-value1", 0))
	assert.True(t, mr.Exists("test:redis-key1"))

	val, found, err := cache.Get(ctx, "redis-key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "redis-value1", val)

	_, found, err = cache.Get(ctx, "redis-non-existent")
	assert.NoError(t, err)
	assert.False(t, found)

	// 默认TTL生效
	assert.Equal(t, time.Minute, mr.TTL("test:redis-key1"))

	// 测试过期
	require.NoError(t, cache.Set(ctx, "redis-expire-soon", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err = cache.Get(ctx, "redis-expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 测试SetNX
	ok, err := cache.SetNX(ctx, "claim", "a", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = cache.SetNX(ctx, "claim", "b", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// 测试删除
	require.NoError(t, cache.Delete(ctx, "claim"))
	_, found, _ = cache.Get(ctx, "claim")
	assert.False(t, found)

	// Clear 只删除带前缀的键
	require.NoError(t, mr.Set("other:key", "keep"))
	require.NoError(t, cache.Clear(ctx))
	assert.False(t, mr.Exists("test:redis-key1"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(Config{Type: "redis", RedisAddr: addr})
	assert.Error(t, err)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	memCache, err := NewCache(DefaultConfig())
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, memCache)

	mr := miniredis.RunT(t)
	redisCache, err := NewCache(Config{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, redisCache)

	// 未知类型返回默认内存缓存
	unknownCache, err := NewCache(Config{Type: "unknown-type"})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, unknownCache)
}

// TestGenerateCacheKey 测试缓存键生成
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))
}

func TestSubmissionKey(t *testing.T) {
	doc := []byte("%PDF")
	a := SubmissionKey(doc, nil, `ID:(\d+)`)
	b := SubmissionKey(doc, nil, `ID:(\d+)`)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "submission:")

	assert.NotEqual(t, a, SubmissionKey(doc, nil, `ID:(\w+)`))
	assert.NotEqual(t, a, SubmissionKey(doc, []byte("table"), `ID:(\d+)`))
	// 参数边界参与计算
	assert.NotEqual(t, SubmissionKey(doc, nil, "ab", "c"), SubmissionKey(doc, nil, "a", "bc"))
}
