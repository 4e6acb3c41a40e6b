package service

import (
	"context"
	"errors"
	"fmt"

	rd "github.com/redis/go-redis/v9"

	"dianping/internal/model"
	"dianping/internal/store"
	rediskey "dianping/pkg/redis"
)

// VoucherService 秒杀券管理。建券即把库存预热进 Redis，
// 秒杀热路径只与 Redis 交互。
type VoucherService struct {
	rdb      *rd.Client
	vouchers store.SeckillVoucherStore
}

func NewVoucherService(rdb *rd.Client, vouchers store.SeckillVoucherStore) *VoucherService {
	return &VoucherService{rdb: rdb, vouchers: vouchers}
}

// AddSeckillVoucher 创建秒杀券并写入库存键。
func (s *VoucherService) AddSeckillVoucher(ctx context.Context, v *model.SeckillVoucher) error {
	if err := s.vouchers.Create(ctx, v); err != nil {
		return err
	}
	return s.rdb.Set(ctx, rediskey.SeckillStockKey(v.ID), v.Stock, 0).Err()
}

// PreloadStock 把 DB 库存重新灌入 Redis，用于活动前重置。
func (s *VoucherService) PreloadStock(ctx context.Context, id uint) error {
	v, err := s.vouchers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("service: preload voucher %d: not found", id)
	}
	// 清掉上一轮的去重集合，同一张券重新开卖
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, rediskey.SeckillStockKey(id), v.Stock, 0)
	pipe.Del(ctx, rediskey.SeckillOrderKey(id))
	_, err = pipe.Exec(ctx)
	return err
}

// LiveStock 查询 Redis 实时库存，键不存在按 0 返回。
func (s *VoucherService) LiveStock(ctx context.Context, id uint) (int64, error) {
	val, err := s.rdb.Get(ctx, rediskey.SeckillStockKey(id)).Int64()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return val, nil
}
