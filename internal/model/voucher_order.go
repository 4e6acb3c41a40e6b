package model

import "time"

// VoucherOrder 秒杀订单。ID 由集群 ID 生成器分配，不用自增主键。
// (user_id, voucher_id) 唯一索引是 DB 层兜底：
// Redis 去重集合已经过滤了重复下单，理论上不会触发。
type VoucherOrder struct {
	ID        int64     `gorm:"primarykey;autoIncrement:false" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    int64 `gorm:"not null;uniqueIndex:idx_user_voucher" json:"user_id"`
	VoucherID uint  `gorm:"not null;uniqueIndex:idx_user_voucher" json:"voucher_id"`
	Status    int   `gorm:"not null;default:0" json:"status"` // 0 待支付 1 已支付 2 已取消
}

func (VoucherOrder) TableName() string { return "voucher_orders" }
