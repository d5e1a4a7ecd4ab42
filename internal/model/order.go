package model

import (
	"time"

	"gorm.io/gorm"
)

// Order 一笔交易订单，创建时连同明细一次性写入。
// OrderNo 形如 ORD-20240101-0001，全局唯一（uniqueIndex 兜底并发冲突）。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderNo     string      `gorm:"size:64;uniqueIndex;not null" json:"order_number"`
	Status      OrderStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	TotalAmount float64     `gorm:"not null" json:"total_amount"`
	Notes       string      `gorm:"size:512" json:"notes,omitempty"`
	CustomerID  *uint       `gorm:"index" json:"customer_id,omitempty"`

	Customer *Customer   `json:"customer,omitempty"`
	Items    []OrderItem `json:"items"`
}

func (Order) TableName() string { return "orders" }

// OrderItem 订单明细行，归属订单，创建后不再单独修改。
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID   uint `gorm:"not null;index" json:"order_id"`
	ProductID uint `gorm:"not null;index" json:"product_id"`
	Quantity  int  `gorm:"not null" json:"quantity"`
	// UnitPrice 为下单时刻的商品售价快照。
	UnitPrice float64 `gorm:"not null" json:"unit_price"`
	Subtotal  float64 `gorm:"not null" json:"subtotal"`

	Product *Product `json:"product,omitempty"`
}

func (OrderItem) TableName() string { return "order_items" }
