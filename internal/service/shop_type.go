package service

import (
	"context"
	"encoding/json"
	"errors"

	rd "github.com/redis/go-redis/v9"

	"dianping/internal/model"
	"dianping/internal/store"
	rediskey "dianping/pkg/redis"
)

// ShopTypeService 店铺分类列表。整个列表作为一个键缓存，
// 分类几乎不变，不需要逐条管理。
type ShopTypeService struct {
	rdb   *rd.Client
	types store.ShopTypeStore
}

func NewShopTypeService(rdb *rd.Client, types store.ShopTypeStore) *ShopTypeService {
	return &ShopTypeService{rdb: rdb, types: types}
}

// List 返回按 Sort 排序的分类列表，缓存未命中时回源并写回。
func (s *ShopTypeService) List(ctx context.Context) ([]model.ShopType, error) {
	raw, err := s.rdb.Get(ctx, rediskey.CacheShopTypeKey).Result()
	if err == nil {
		var list []model.ShopType
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	if !errors.Is(err, rd.Nil) {
		return nil, err
	}

	list, err := s.types.ListOrdered(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, rediskey.CacheShopTypeKey, b, rediskey.CacheShopTTL).Err(); err != nil {
		return nil, err
	}
	return list, nil
}
