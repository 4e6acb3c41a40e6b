package model

import (
	"time"

	"gorm.io/gorm"
)

// Shop 店铺详情：读路径走旁路缓存，更新后删缓存。
type Shop struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name     string  `gorm:"size:128;not null" json:"name"`
	TypeID   uint    `gorm:"not null;index" json:"type_id"`
	Address  string  `gorm:"size:255" json:"address"`
	X        float64 `json:"x"` // 经度
	Y        float64 `json:"y"` // 纬度
	AvgPrice int64   `json:"avg_price"` // 单位：分
	Score    int     `json:"score"`     // 评分 x10 存整数
}

func (Shop) TableName() string { return "shops" }
