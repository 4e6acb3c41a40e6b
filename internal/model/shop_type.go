package model

import (
	"time"

	"gorm.io/gorm"
)

// ShopType 店铺分类，首页列表整体缓存。
type ShopType struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name string `gorm:"size:64;not null" json:"name"`
	Icon string `gorm:"size:255" json:"icon"`
	Sort int    `gorm:"not null;default:0" json:"sort"`
}

func (ShopType) TableName() string { return "shop_types" }
