package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaUnlockIfMatch 仅当锁值与本持有者令牌一致时才删除。
// 读值与删除必须在同一次脚本求值内完成：分开执行时，
// 锁可能在读和删之间过期并被新持有者获取，导致误删他人锁。
const luaUnlockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

var unlockScript = rd.NewScript(luaUnlockIfMatch)

// instanceToken 进程级唯一标识，重启后重新生成，保证令牌跨重启不碰撞。
var instanceToken = uuid.New().String()

// Lock 基于 Redis SETNX 的跨实例互斥锁。
// TryLock 不在内部重试，重试/退避策略由调用方决定。
type Lock struct {
	rdb   *rd.Client
	name  string
	token string
}

// NewLock 创建名为 name 的锁，实际占用键 lock:{name}。
// 令牌由进程标识与本次执行标识拼接，不会被其他持有者复用。
func NewLock(rdb *rd.Client, name string) *Lock {
	return &Lock{
		rdb:   rdb,
		name:  name,
		token: instanceToken + "-" + uuid.New().String(),
	}
}

// TryLock 单次原子抢锁，成功返回 true。
// Redis 不可达时返回错误，调用方必须按"未获取到锁"处理。
func (l *Lock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, lockPrefix+l.name, l.token, ttl).Result()
}

// Unlock 释放锁。令牌不匹配（锁已过期且被他人持有）时为空操作。
func (l *Lock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.rdb, []string{lockPrefix + l.name}, l.token).Err()
}
