// Package store 是关系库的窄端口：按 id 读、插入、按 id 更新。
// 核心流程只依赖这些接口，不感知具体表结构与查询细节。
package store

import (
	"context"

	"dianping/internal/model"
)

// ShopStore 店铺读写。GetByID 未找到时返回 (nil, nil)。
type ShopStore interface {
	GetByID(ctx context.Context, id uint) (*model.Shop, error)
	UpdateByID(ctx context.Context, shop *model.Shop) error
}

// ShopTypeStore 店铺分类列表，按 Sort 升序。
type ShopTypeStore interface {
	ListOrdered(ctx context.Context) ([]model.ShopType, error)
}

// SeckillVoucherStore 秒杀券读写。
// DecrementStock 带 stock > 0 守卫，DB 侧库存永不为负。
type SeckillVoucherStore interface {
	GetByID(ctx context.Context, id uint) (*model.SeckillVoucher, error)
	Create(ctx context.Context, v *model.SeckillVoucher) error
	DecrementStock(ctx context.Context, id uint) error
}

// VoucherOrderStore 订单落库与一人一单计数。
type VoucherOrderStore interface {
	Insert(ctx context.Context, o *model.VoucherOrder) error
	CountByUserAndVoucher(ctx context.Context, userID int64, voucherID uint) (int64, error)
}
