package seckill

import rd "github.com/redis/go-redis/v9"

// 秒杀资格判定的四态结果。库存判定与一人一单判定必须在
// 同一次脚本求值内完成，Redis 对脚本的串行执行就是全部互斥保证。
const (
	purchaseOK          = 0 // 扣减成功，已写入去重集合
	purchaseOutOfStock  = 1 // 库存不足
	purchaseDuplicate   = 2 // 该用户已购买过
	purchaseNotOnSale   = 3 // 库存键不存在：券未上架或未预热
)

// luaPurchase 原子完成：库存键存在性校验 → 库存 > 0 校验 →
// 用户去重校验 → DECR 库存 + SADD 用户。
// KEYS[1]=seckill:stock:{voucherId}，KEYS[2]=seckill:order:{voucherId}，
// ARGV[1]=userId。
const luaPurchase = `
local stockKey = KEYS[1]
local orderKey = KEYS[2]
local userId = ARGV[1]

local stock = redis.call('GET', stockKey)
if not stock then
  return 3
end
if tonumber(stock) <= 0 then
  return 1
end
if redis.call('SISMEMBER', orderKey, userId) == 1 then
  return 2
end
redis.call('INCRBY', stockKey, -1)
redis.call('SADD', orderKey, userId)
return 0
`

// luaRollback 撤销一次成功的资格判定：入队失败或 ID 分配失败时调用，
// 让用户重试时不会被去重集合挡住。以 SREM 的返回值做幂等守卫，
// 重复回滚不会多加库存。
const luaRollback = `
local stockKey = KEYS[1]
local orderKey = KEYS[2]
local userId = ARGV[1]

if redis.call('SREM', orderKey, userId) == 1 then
  redis.call('INCRBY', stockKey, 1)
  return 1
end
return 0
`

var (
	purchaseScript = rd.NewScript(luaPurchase)
	rollbackScript = rd.NewScript(luaRollback)
)
