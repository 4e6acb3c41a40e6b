package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"dianping/internal/model"
)

// Shops 基于 gorm 的 ShopStore 实现。
type Shops struct{ db *gorm.DB }

func NewShops(db *gorm.DB) *Shops { return &Shops{db: db} }

func (s *Shops) GetByID(ctx context.Context, id uint) (*model.Shop, error) {
	var shop model.Shop
	err := s.db.WithContext(ctx).First(&shop, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

func (s *Shops) UpdateByID(ctx context.Context, shop *model.Shop) error {
	return s.db.WithContext(ctx).Model(&model.Shop{}).
		Where("id = ?", shop.ID).
		Updates(shop).Error
}

// ShopTypes 基于 gorm 的 ShopTypeStore 实现。
type ShopTypes struct{ db *gorm.DB }

func NewShopTypes(db *gorm.DB) *ShopTypes { return &ShopTypes{db: db} }

func (s *ShopTypes) ListOrdered(ctx context.Context) ([]model.ShopType, error) {
	var list []model.ShopType
	if err := s.db.WithContext(ctx).Order("sort asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SeckillVouchers 基于 gorm 的 SeckillVoucherStore 实现。
type SeckillVouchers struct{ db *gorm.DB }

func NewSeckillVouchers(db *gorm.DB) *SeckillVouchers { return &SeckillVouchers{db: db} }

func (s *SeckillVouchers) GetByID(ctx context.Context, id uint) (*model.SeckillVoucher, error) {
	var v model.SeckillVoucher
	err := s.db.WithContext(ctx).First(&v, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *SeckillVouchers) Create(ctx context.Context, v *model.SeckillVoucher) error {
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *SeckillVouchers) DecrementStock(ctx context.Context, id uint) error {
	// stock > 0 守卫：即便上游失效也不会把 DB 库存扣成负数
	return s.db.WithContext(ctx).Model(&model.SeckillVoucher{}).
		Where("id = ? AND stock > 0", id).
		UpdateColumn("stock", gorm.Expr("stock - 1")).Error
}

// VoucherOrders 基于 gorm 的 VoucherOrderStore 实现。
type VoucherOrders struct{ db *gorm.DB }

func NewVoucherOrders(db *gorm.DB) *VoucherOrders { return &VoucherOrders{db: db} }

func (s *VoucherOrders) Insert(ctx context.Context, o *model.VoucherOrder) error {
	return s.db.WithContext(ctx).Create(o).Error
}

func (s *VoucherOrders) CountByUserAndVoucher(ctx context.Context, userID int64, voucherID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.VoucherOrder{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		Count(&n).Error
	return n, err
}
