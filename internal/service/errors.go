package service

import (
	"errors"
	"fmt"

	"coffee_pos/internal/model"
)

var (
	// ErrInvalidInput 请求形参不合法（空明细、数量 < 1 等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyCancelled 重复取消。
	ErrAlreadyCancelled = errors.New("order is already cancelled")
	// ErrCannotCancelCompleted 已完成订单不可取消。
	ErrCannotCancelCompleted = errors.New("cannot cancel completed order")
	// ErrOrderClosed 终态订单不可再修改。
	ErrOrderClosed = errors.New("order is in a terminal state")
)

// ProductNotFoundError 明细引用了不存在的商品。
type ProductNotFoundError struct {
	ProductID uint
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// ProductInactiveError 明细引用了已下架商品。
type ProductInactiveError struct {
	ProductID uint
	Name      string
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("product %q (id=%d) is inactive", e.Name, e.ProductID)
}

// InsufficientStockError 库存不足，附带当前可用量方便前端提示。
type InsufficientStockError struct {
	ProductID uint
	Name      string
	Requested int
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q (id=%d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError 非法状态流转。
type InvalidTransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
