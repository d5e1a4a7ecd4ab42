package model

import (
	"time"

	"gorm.io/gorm"
)

// Category 商品分类
type Category struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name         string `gorm:"size:128;not null" json:"name"`
	Description  string `gorm:"size:512" json:"description"`
	Slug         string `gorm:"size:128;uniqueIndex;not null" json:"slug"`
	IsActive     bool   `gorm:"not null;default:true" json:"is_active"`
	DisplayOrder int    `gorm:"not null;default:0" json:"display_order"`
}

func (Category) TableName() string { return "categories" }
