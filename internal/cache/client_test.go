package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	rediskey "dianping/pkg/redis"
)

type shop struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis, *rd.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewClient(rdb, zap.NewNop()), mr, rdb
}

func TestQueryWithPassThrough_MissThenHit(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return &shop{ID: id, Name: "甜品站"}, nil
	}

	got, err := QueryWithPassThrough(ctx, c, rediskey.CacheShopPrefix, uint(1), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "甜品站", got.Name)

	// 第二次命中缓存，不再回源
	got, err = QueryWithPassThrough(ctx, c, rediskey.CacheShopPrefix, uint(1), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueryWithPassThrough_NegativeCacheStopsPenetration(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return nil, nil
	}

	got, err := QueryWithPassThrough(ctx, c, rediskey.CacheShopPrefix, uint(404), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 空值哨兵命中，dbFallback 不再被调用
	got, err = QueryWithPassThrough(ctx, c, rediskey.CacheShopPrefix, uint(404), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueryWithPassThrough_SentinelExpires(t *testing.T) {
	c, mr, _ := newTestClient(t)
	ctx := context.Background()

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return nil, nil
	}

	_, err := QueryWithPassThrough(ctx, c, rediskey.CacheShopPrefix, uint(404), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)

	// 哨兵过期后允许再次回源
	mr.FastForward(rediskey.CacheNullTTL + time.Second)
	_, err = QueryWithPassThrough(ctx, c, rediskey.CacheShopPrefix, uint(404), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestQueryWithPassThrough_RedisDown_SurfacesError(t *testing.T) {
	c, mr, _ := newTestClient(t)
	ctx := context.Background()
	mr.Close()

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return &shop{ID: id}, nil
	}

	_, err := QueryWithPassThrough(ctx, c, rediskey.CacheShopPrefix, uint(1), fallback, rediskey.CacheShopTTL)
	assert.Error(t, err)
	// 基础设施故障不能静默当作 miss 打到数据库
	assert.EqualValues(t, 0, calls.Load())
}

func TestQueryWithMutex_SingleRebuildUnderContention(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond) // 放大重建窗口
		return &shop{ID: id, Name: "热门店"}, nil
	}

	const m = 10
	var wg sync.WaitGroup
	results := make([]*shop, m)
	errs := make([]error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = QueryWithMutex(ctx, c, rediskey.CacheShopPrefix, uint(7), fallback, rediskey.CacheShopTTL)
		}(i)
	}
	wg.Wait()

	for i := 0; i < m; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "热门店", results[i].Name)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueryWithMutex_NegativeResultCached(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return nil, nil
	}

	got, err := QueryWithMutex(ctx, c, rediskey.CacheShopPrefix, uint(404), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = QueryWithMutex(ctx, c, rediskey.CacheShopPrefix, uint(404), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueryWithMutex_ReleasesLockAfterRebuild(t *testing.T) {
	c, mr, _ := newTestClient(t)
	ctx := context.Background()

	fallback := func(ctx context.Context, id uint) (*shop, error) {
		return &shop{ID: id}, nil
	}

	_, err := QueryWithMutex(ctx, c, rediskey.CacheShopPrefix, uint(3), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:shop:3"))
}

func TestQueryWithLogicalExpire_AbsentKeyIsAuthoritative(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return &shop{ID: id}, nil
	}

	// 未预热的键不回源：miss 即权威的"不在数据集中"
	got, err := QueryWithLogicalExpire(ctx, c, rediskey.CacheShopPrefix, uint(1), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.EqualValues(t, 0, calls.Load())
}

func TestQueryWithLogicalExpire_FreshValueReturnsWithoutLock(t *testing.T) {
	c, mr, _ := newTestClient(t)
	ctx := context.Background()

	key := rediskey.CacheShopKey(1)
	require.NoError(t, c.SetWithLogicalExpire(ctx, key, &shop{ID: 1, Name: "预热店"}, time.Hour))

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return &shop{ID: id, Name: "新数据"}, nil
	}

	got, err := QueryWithLogicalExpire(ctx, c, rediskey.CacheShopPrefix, uint(1), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "预热店", got.Name)
	assert.EqualValues(t, 0, calls.Load())
	assert.False(t, mr.Exists("lock:shop:1"))
}

func TestQueryWithLogicalExpire_StaleReturnsThenRefreshes(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	// 写入一个逻辑上已过期的信封
	key := rediskey.CacheShopKey(1)
	require.NoError(t, c.SetWithLogicalExpire(ctx, key, &shop{ID: 1, Name: "旧数据"}, -time.Minute))

	var calls atomic.Int32
	fallback := func(ctx context.Context, id uint) (*shop, error) {
		calls.Add(1)
		return &shop{ID: id, Name: "新数据"}, nil
	}

	// 触发重建的这次调用立刻拿到旧值
	got, err := QueryWithLogicalExpire(ctx, c, rediskey.CacheShopPrefix, uint(1), fallback, rediskey.CacheShopTTL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "旧数据", got.Name)

	// 后台刷新完成后，后续读取拿到新值且不再触发回源
	assert.Eventually(t, func() bool {
		v, err := QueryWithLogicalExpire(ctx, c, rediskey.CacheShopPrefix, uint(1), fallback, rediskey.CacheShopTTL)
		return err == nil && v != nil && v.Name == "新数据"
	}, 2*time.Second, 20*time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSetThenDelete_InvalidatesKey(t *testing.T) {
	c, mr, _ := newTestClient(t)
	ctx := context.Background()

	key := rediskey.CacheShopKey(5)
	require.NoError(t, c.Set(ctx, key, &shop{ID: 5}, rediskey.CacheShopTTL))
	assert.True(t, mr.Exists(key))

	require.NoError(t, c.Delete(ctx, key))
	assert.False(t, mr.Exists(key))
}
