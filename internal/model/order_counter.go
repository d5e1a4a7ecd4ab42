package model

// OrderCounter 按天单号计数器，Day 形如 20240101。
// 取号通过 UPSERT 原子自增，避免“数当天订单再加一”的并发竞态。
type OrderCounter struct {
	Day string `gorm:"primarykey;size:8"`
	Seq int64  `gorm:"not null;default:0"`
}

func (OrderCounter) TableName() string { return "order_counters" }
