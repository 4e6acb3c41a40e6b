package redis

import (
	"fmt"
	"strings"
	"time"
)

// 统一约定全部 Redis 键名与 TTL。
// 秒杀 Lua 脚本按这些键名寻址，改动前缀必须同步脚本。
const (
	CacheShopPrefix  = "cache:shop:"
	CacheShopTypeKey = "cache:shop-type:list"

	lockPrefix = "lock:"

	SeckillStockPrefix = "seckill:stock:"
	SeckillOrderPrefix = "seckill:order:"

	seqPrefix = "icr:"
)

const (
	// CacheShopTTL 店铺缓存的物理过期时间。
	CacheShopTTL = 30 * time.Minute
	// CacheNullTTL 空值缓存（防穿透哨兵）的短过期时间。
	CacheNullTTL = 2 * time.Minute
	// RebuildLockTTL 缓存重建互斥锁的自动过期时间，
	// 持有者崩溃后最多占用这么久。
	RebuildLockTTL = 10 * time.Second
)

// CacheShopKey 店铺详情缓存键。
func CacheShopKey(id uint) string {
	return fmt.Sprintf("%s%d", CacheShopPrefix, id)
}

// SeckillStockKey 优惠券实时库存键。
func SeckillStockKey(voucherID uint) string {
	return fmt.Sprintf("%s%d", SeckillStockPrefix, voucherID)
}

// SeckillOrderKey 优惠券下单用户去重集合键。
func SeckillOrderKey(voucherID uint) string {
	return fmt.Sprintf("%s%d", SeckillOrderPrefix, voucherID)
}

// RebuildLockName 由缓存键推导重建锁名：cache:shop:1 -> shop:1。
// 最终锁键为 lock:shop:1，与缓存键一一对应。
func RebuildLockName(cacheKey string) string {
	return strings.TrimPrefix(cacheKey, "cache:")
}

// seqKey 日粒度自增序列键，日期嵌入键名使计数每天自然归零。
func seqKey(prefix, date string) string {
	return seqPrefix + prefix + ":" + date
}
