package model

import (
	"time"

	"gorm.io/gorm"
)

// Customer 登记顾客；散客下单时订单不关联顾客。
type Customer struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Email     string `gorm:"size:128;uniqueIndex;not null" json:"email"`
	FirstName string `gorm:"size:64;not null" json:"first_name"`
	LastName  string `gorm:"size:64;not null" json:"last_name"`
	Phone     string `gorm:"size:32" json:"phone,omitempty"`
}

func (Customer) TableName() string { return "customers" }

// FullName 用于事件里的 customer_name 展示。
func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}
