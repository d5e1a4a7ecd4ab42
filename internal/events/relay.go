package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"coffee_pos/internal/queue"
)

// Relay 把总线上的订单事件异步转发到 Kafka，供下游系统消费。
// 它本身只是一个普通订阅者：转发失败只记日志，不影响发布方，
// 也不提供重放（错过即错过，与总线语义一致）。
type Relay struct {
	bus      *Bus
	producer *queue.Producer
}

func NewRelay(bus *Bus, producer *queue.Producer) *Relay {
	return &Relay{bus: bus, producer: producer}
}

// Run 订阅总线并转发，直到 ctx 取消。阻塞调用，通常放在单独 goroutine。
func (r *Relay) Run(ctx context.Context) {
	id, ch := r.bus.Subscribe()
	defer r.bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				log.Printf("relay marshal: %v", err)
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := r.producer.Publish(pubCtx, ev.OrderNumber, b); err != nil {
				log.Printf("relay publish order=%s: %v", ev.OrderNumber, err)
			}
			cancel()
		}
	}
}
