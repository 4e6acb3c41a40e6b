package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dianping/internal/cache"
	"dianping/internal/model"
	"dianping/internal/store"
	rediskey "dianping/pkg/redis"
)

// ErrMissingShopID 更新请求缺少店铺 ID。
var ErrMissingShopID = errors.New("service: shop id is required")

// ShopService 店铺读写：读路径走互斥重建的旁路缓存，
// 预热数据集另提供逻辑过期读。
type ShopService struct {
	cache *cache.Client
	shops store.ShopStore
}

func NewShopService(c *cache.Client, shops store.ShopStore) *ShopService {
	return &ShopService{cache: c, shops: shops}
}

// QueryByID 查询店铺详情。返回 (nil, nil) 表示店铺不存在
// （且已写入空值哨兵，短期内不会再打数据库）。
func (s *ShopService) QueryByID(ctx context.Context, id uint) (*model.Shop, error) {
	return cache.QueryWithMutex(ctx, s.cache, rediskey.CacheShopPrefix, id,
		s.shops.GetByID, rediskey.CacheShopTTL)
}

// QueryByIDWithLogicalExpire 面向活动预热数据集的读取：
// 未预热的店铺视为不在活动中，过期数据返回旧值并异步刷新。
func (s *ShopService) QueryByIDWithLogicalExpire(ctx context.Context, id uint) (*model.Shop, error) {
	return cache.QueryWithLogicalExpire(ctx, s.cache, rediskey.CacheShopPrefix, id,
		s.shops.GetByID, rediskey.CacheShopTTL)
}

// Update 先更新数据库再删除缓存键，下次读取时重建。
func (s *ShopService) Update(ctx context.Context, shop *model.Shop) error {
	if shop.ID == 0 {
		return ErrMissingShopID
	}
	if err := s.shops.UpdateByID(ctx, shop); err != nil {
		return err
	}
	return s.cache.Delete(ctx, rediskey.CacheShopKey(shop.ID))
}

// WarmUp 以逻辑过期信封把店铺预热进缓存，供活动期间无阻塞读取。
func (s *ShopService) WarmUp(ctx context.Context, id uint, ttl time.Duration) error {
	shop, err := s.shops.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if shop == nil {
		return fmt.Errorf("service: warm up shop %d: not found", id)
	}
	return s.cache.SetWithLogicalExpire(ctx, rediskey.CacheShopKey(id), shop, ttl)
}
