package model

import (
	"time"

	"gorm.io/gorm"
)

// Product 在售商品：价格、库存、上下架状态
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string `gorm:"size:128;not null" json:"name"`
	Description string `gorm:"size:512" json:"description"`
	// Price 为当前售价；下单时快照到 OrderItem.UnitPrice，之后改价不影响历史订单。
	Price      float64 `gorm:"not null" json:"price"`
	SKU        string  `gorm:"size:64;uniqueIndex;not null" json:"sku"`
	Stock      int64   `gorm:"not null;default:0" json:"stock"`
	IsActive   bool    `gorm:"not null;default:true" json:"is_active"`
	ImageURL   string  `gorm:"size:255" json:"image_url,omitempty"`
	CategoryID uint    `gorm:"index" json:"category_id"`
}

func (Product) TableName() string { return "products" }
