package model

// OrderStatus 订单状态机。
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusPreparing OrderStatus = "PREPARING"
	StatusReady     OrderStatus = "READY"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// validNext 定义合法流转；COMPLETED / CANCELLED 为终态，无出边。
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing: {StatusReady: true, StatusCancelled: true},
	StatusReady:     {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

// IsValid 判断是否为已知状态。
func (s OrderStatus) IsValid() bool {
	_, ok := validNext[s]
	return ok
}

// IsTerminal 终态订单不可再变更。
func (s OrderStatus) IsTerminal() bool {
	return len(validNext[s]) == 0 && s.IsValid()
}

// CanTransition 查状态表判断 from -> to 是否允许。
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// AllowedNext 返回某状态的全部合法后继（拷贝，调用方可随意修改）。
func AllowedNext(from OrderStatus) []OrderStatus {
	next := validNext[from]
	out := make([]OrderStatus, 0, len(next))
	for s := range next {
		out = append(out, s)
	}
	return out
}
