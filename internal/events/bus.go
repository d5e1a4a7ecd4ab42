package events

import (
	"sync"
	"time"

	"coffee_pos/internal/model"

	"github.com/google/uuid"
)

const (
	EventOrderCreated   = "order_created"
	EventOrderUpdated   = "order_updated"
	EventOrderCancelled = "order_cancelled"
)

// OrderEvent 订单生命周期事件，序列化后推给所有在线订阅者（如后厨显示屏）。
type OrderEvent struct {
	Type         string            `json:"type"`
	OrderID      uint              `json:"order_id"`
	OrderNumber  string            `json:"order_number"`
	Status       model.OrderStatus `json:"status"`
	TotalAmount  float64           `json:"total_amount"`
	CustomerName string            `json:"customer_name,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Bus 进程内广播总线：订阅者注册表 + 非阻塞投递。
// 语义为 at-most-once：无人订阅时事件直接丢弃，不排队不重放；
// 某个订阅者缓冲打满时只丢它自己的，绝不拖慢发布方和其他订阅者。
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan OrderEvent
	buf  int
}

// NewBus 创建总线，buf 为每个订阅者的通道缓冲大小。
func NewBus(buf int) *Bus {
	if buf <= 0 {
		buf = 16
	}
	return &Bus{
		subs: make(map[string]chan OrderEvent),
		buf:  buf,
	}
}

// Subscribe 注册一个订阅者，返回其 ID 与只读事件通道。
// 订阅之后发布的事件按发布顺序送达。
func (b *Bus) Subscribe() (string, <-chan OrderEvent) {
	id := uuid.NewString()
	ch := make(chan OrderEvent, b.buf)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe 移除订阅者并关闭其通道，重复调用无害。
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish 将事件投递给当前全部订阅者。
// 发送为非阻塞：通道打满立即放弃该订阅者本条事件。
// 关闭通道只发生在 Unsubscribe 的写锁内，这里持读锁发送不会撞上 closed channel。
func (b *Bus) Publish(ev OrderEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount 当前在线订阅者数量。
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
