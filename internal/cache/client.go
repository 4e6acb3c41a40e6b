// Package cache 提供通用的旁路缓存读写：
// 空值缓存解决穿透，互斥重建与逻辑过期两种策略解决击穿。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	rediskey "dianping/pkg/redis"
)

// ErrRebuildContended 表示等待重建锁超出重试预算。
// 正常情况下重建远快于预算，出现该错误说明锁被异常占用。
var ErrRebuildContended = errors.New("cache: rebuild lock contended, retry budget exhausted")

// Client 持有 Redis 连接与重建策略参数。
// 三个查询入口是包级泛型函数（Go 的方法不能引入类型参数）。
type Client struct {
	rdb *rd.Client
	log *zap.Logger
	now func() time.Time

	// 等待重建锁时单次休眠时长与最大重试次数
	lockRetry  time.Duration
	maxRetries int
}

func NewClient(rdb *rd.Client, log *zap.Logger) *Client {
	return &Client{
		rdb:        rdb,
		log:        log,
		now:        time.Now,
		lockRetry:  50 * time.Millisecond,
		maxRetries: 200,
	}
}

// Set 序列化后写入缓存，由 Redis TTL 控制物理过期。
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// redisData 逻辑过期信封：过期时间嵌在 value 里而不是依赖 Redis TTL。
type redisData struct {
	ExpireAt time.Time       `json:"expire_at"`
	Data     json.RawMessage `json:"data"`
}

// SetWithLogicalExpire 以逻辑过期信封写入，不设置物理 TTL。
// 预热数据走这里，读到过期数据时返回旧值并异步重建。
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env, err := json.Marshal(redisData{ExpireAt: c.now().Add(ttl), Data: b})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, env, 0).Err()
}

// Delete 删除缓存键，数据源更新后调用以保证下次读取重建。
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// lookup 查一次缓存。hit 为 true 且 value 为 nil 表示命中空值哨兵。
// Redis 不可达必须向上抛错，静默当作 miss 会把读压力全部转给数据库。
func lookup[R any](ctx context.Context, c *Client, key string) (value *R, hit bool, err error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if raw == "" {
		// 空值哨兵：确认过源中不存在，直接返回不打数据库
		return nil, true, nil
	}
	var r R
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

// rebuild 调用数据源回源并回填缓存。
// 源中不存在时写入短 TTL 的空值哨兵解决缓存穿透。
func rebuild[R any, ID any](ctx context.Context, c *Client, key string, id ID,
	dbFallback func(context.Context, ID) (*R, error), ttl time.Duration) (*R, error) {
	r, err := dbFallback(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		if err := c.rdb.Set(ctx, key, "", rediskey.CacheNullTTL).Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := c.Set(ctx, key, r, ttl); err != nil {
		return nil, err
	}
	return r, nil
}

// QueryWithPassThrough 带空值缓存的旁路读。
// 未命中则回源，源不存在写哨兵，存在写缓存，均按 keyPrefix+id 寻址。
func QueryWithPassThrough[R any, ID any](ctx context.Context, c *Client, keyPrefix string, id ID,
	dbFallback func(context.Context, ID) (*R, error), ttl time.Duration) (*R, error) {
	key := keyPrefix + fmt.Sprint(id)
	if r, hit, err := lookup[R](ctx, c, key); err != nil || hit {
		return r, err
	}
	return rebuild(ctx, c, key, id, dbFallback, ttl)
}

// QueryWithMutex 在旁路读之上加互斥重建，解决热键过期后的缓存击穿：
// 同一键同一时刻最多一个请求回源，其余请求小睡后重查缓存。
// 锁 TTL 内这一约束成立；重建慢于 TTL 时仍可能并发回源，属接受的边界。
func QueryWithMutex[R any, ID any](ctx context.Context, c *Client, keyPrefix string, id ID,
	dbFallback func(context.Context, ID) (*R, error), ttl time.Duration) (*R, error) {
	key := keyPrefix + fmt.Sprint(id)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if r, hit, err := lookup[R](ctx, c, key); err != nil || hit {
			return r, err
		}

		lock := rediskey.NewLock(c.rdb, rediskey.RebuildLockName(key))
		ok, err := lock.TryLock(ctx, rediskey.RebuildLockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			// 别的请求正在重建，等它写回后重查
			time.Sleep(c.lockRetry)
			continue
		}

		return func() (*R, error) {
			defer c.release(lock)
			// DoubleCheck：抢锁期间可能已被其他持有者重建
			if r, hit, err := lookup[R](ctx, c, key); err != nil || hit {
				return r, err
			}
			return rebuild(ctx, c, key, id, dbFallback, ttl)
		}()
	}
	return nil, ErrRebuildContended
}

// QueryWithLogicalExpire 逻辑过期读，面向整体预热的数据集：
// 键不存在即视为不在数据集中，直接返回 nil，不回源。
// 命中过期数据时返回旧值并在拿到锁的请求里异步重建，调用方永不阻塞。
func QueryWithLogicalExpire[R any, ID any](ctx context.Context, c *Client, keyPrefix string, id ID,
	dbFallback func(context.Context, ID) (*R, error), ttl time.Duration) (*R, error) {
	key := keyPrefix + fmt.Sprint(id)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}

	stale, expireAt, err := decodeEnvelope[R](raw)
	if err != nil {
		return nil, err
	}
	if c.now().Before(expireAt) {
		return stale, nil
	}

	// 已过期，尝试成为重建者；抢不到锁直接用旧值
	lock := rediskey.NewLock(c.rdb, rediskey.RebuildLockName(key))
	ok, err := lock.TryLock(ctx, rediskey.RebuildLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return stale, nil
	}

	fresh := func() *R {
		defer c.release(lock)
		// DoubleCheck：可能已有持有者刷新完毕
		if raw2, err := c.rdb.Get(ctx, key).Result(); err == nil {
			if r2, exp2, err2 := decodeEnvelope[R](raw2); err2 == nil && c.now().Before(exp2) {
				return r2
			}
		}
		// 确实过期：后台重建，本次调用不等待结果
		go c.refreshAsync(key, func(bg context.Context) (any, error) {
			v, err := dbFallback(bg, id)
			if err != nil || v == nil {
				return nil, err
			}
			return v, nil
		}, ttl)
		return nil
	}()
	if fresh != nil {
		return fresh, nil
	}
	return stale, nil
}

// refreshAsync 独立后台任务刷新逻辑过期数据，失败只记录日志。
func (c *Client) refreshAsync(key string, fetch func(context.Context) (any, error), ttl time.Duration) {
	bg, cancel := context.WithTimeout(context.Background(), rediskey.RebuildLockTTL)
	defer cancel()

	v, err := fetch(bg)
	if err != nil {
		c.log.Error("cache: async refresh fallback failed", zap.String("key", key), zap.Error(err))
		return
	}
	if v == nil {
		c.log.Warn("cache: async refresh found no source row", zap.String("key", key))
		return
	}
	if err := c.SetWithLogicalExpire(bg, key, v, ttl); err != nil {
		c.log.Error("cache: async refresh write failed", zap.String("key", key), zap.Error(err))
	}
}

// release 释放重建锁，独立于请求上下文，保证取消的请求也能释放。
func (c *Client) release(lock *rediskey.Lock) {
	bg, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := lock.Unlock(bg); err != nil {
		c.log.Warn("cache: release rebuild lock failed", zap.Error(err))
	}
}

func decodeEnvelope[R any](raw string) (*R, time.Time, error) {
	var env redisData
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, time.Time{}, err
	}
	var r R
	if err := json.Unmarshal(env.Data, &r); err != nil {
		return nil, time.Time{}, err
	}
	return &r, env.ExpireAt, nil
}
