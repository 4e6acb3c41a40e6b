package model

import (
	"time"

	"gorm.io/gorm"
)

// SeckillVoucher 秒杀优惠券：名称、秒杀价、库存、活动时间段。
// Stock 是 DB 侧的权威库存；秒杀实时扣减走 Redis，
// 后台消费者异步把扣减写回这里。
type SeckillVoucher struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Title     string    `gorm:"size:128;not null" json:"title"`
	PayValue  int64     `gorm:"not null" json:"pay_value"` // 单位：分
	Stock     int64     `gorm:"not null;default:0" json:"stock"`
	BeginTime time.Time `gorm:"not null" json:"begin_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
}

func (SeckillVoucher) TableName() string { return "seckill_vouchers" }
