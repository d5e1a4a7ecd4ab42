package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"coffee_pos/internal/events"
	"coffee_pos/internal/model"
	"coffee_pos/internal/ordernum"

	"gorm.io/gorm"
)

// OrderService 负责下单的校验-预占-落库全流程、状态流转与取消回补。
// 所有库存变动都在同一事务内完成：订单、明细、扣减要么全部生效要么全不生效。
// 事件只在事务提交之后发布。
type OrderService struct {
	db  *gorm.DB
	bus *events.Bus
	now func() time.Time
}

func NewOrderService(db *gorm.DB, bus *events.Bus) *OrderService {
	return &OrderService{db: db, bus: bus, now: time.Now}
}

// OrderItemInput 下单明细入参。
type OrderItemInput struct {
	ProductID uint
	Quantity  int
}

// CreateOrderInput 下单入参；CustomerID 为空表示散客。
type CreateOrderInput struct {
	CustomerID *uint
	Notes      string
	Items      []OrderItemInput
}

// UpdateOrderInput 订单修改入参，两个字段均可选。
type UpdateOrderInput struct {
	Status *model.OrderStatus
	Notes  *string
}

// Create 下单主流程：
// 1. 校验商品存在且在售
// 2. 条件扣减库存（stock >= quantity 才扣，天然防超卖）
// 3. 按当前售价快照计算明细小计与订单总额
// 4. 事务内取当日单号并落单
// 任一步失败整个事务回滚，库存不留任何变动；成功后发布 order_created。
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrInvalidInput
	}
	for _, it := range in.Items {
		if it.ProductID == 0 || it.Quantity < 1 {
			return nil, ErrInvalidInput
		}
	}

	// 单号有 uniqueIndex 兜底；撞号（理论上只在计数器被人工重置时出现）重试一次即可。
	var orderID uint
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		orderID, err = s.createOnce(ctx, in)
		if err == nil || !errorsLikeUnique(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventOrderCreated, order)
	return order, nil
}

func (s *OrderService) createOnce(ctx context.Context, in CreateOrderInput) (uint, error) {
	var orderID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]uint, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.ProductID)
		}

		var products []model.Product
		if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
			return err
		}
		byID := make(map[uint]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		// 先整体校验再动库存：有一个商品不合法就整单拒绝。
		for _, it := range in.Items {
			p, ok := byID[it.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: it.ProductID}
			}
			if !p.IsActive {
				return &ProductInactiveError{ProductID: p.ID, Name: p.Name}
			}
		}

		var total float64
		items := make([]model.OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			p := byID[it.ProductID]

			// 条件扣减：stock >= quantity 才会命中行，RowsAffected 为 0 即库存不足。
			// 两个并发请求抢最后一件时，只有一个 UPDATE 能命中，另一个在这里失败回滚。
			res := tx.Model(&model.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
				Update("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var cur model.Product
				if err := tx.First(&cur, it.ProductID).Error; err != nil {
					return err
				}
				return &InsufficientStockError{
					ProductID: p.ID,
					Name:      p.Name,
					Requested: it.Quantity,
					Available: cur.Stock,
				}
			}

			subtotal := p.Price * float64(it.Quantity)
			total += subtotal
			items = append(items, model.OrderItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
				Subtotal:  subtotal,
			})
		}

		orderNo, err := ordernum.Next(tx, s.now())
		if err != nil {
			return err
		}

		order := model.Order{
			OrderNo:     orderNo,
			Status:      model.StatusPending,
			TotalAmount: total,
			Notes:       in.Notes,
			CustomerID:  in.CustomerID,
			Items:       items,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	return orderID, err
}

// Get 查询订单（含明细、商品与顾客）。
func (s *OrderService) Get(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items").Preload("Items.Product").Preload("Customer").
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// List 按创建时间倒序分页返回订单，status 非空时过滤。
func (s *OrderService) List(ctx context.Context, page, limit int, status model.OrderStatus) ([]model.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	q := s.db.WithContext(ctx).Model(&model.Order{})
	if status != "" {
		if !status.IsValid() {
			return nil, 0, ErrInvalidInput
		}
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []model.Order
	err := q.Preload("Items").Preload("Items.Product").Preload("Customer").
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Update 修改订单备注或推进状态。
// 状态必须符合流转表；目标状态为 CANCELLED 时走完整取消语义（含库存回补），
// 绝不只翻字段。终态订单任何修改都被拒绝。
func (s *OrderService) Update(ctx context.Context, id uint, in UpdateOrderInput) (*model.Order, error) {
	if in.Status == nil && in.Notes == nil {
		return nil, ErrInvalidInput
	}
	if in.Status != nil {
		if !in.Status.IsValid() {
			return nil, ErrInvalidInput
		}
		if *in.Status == model.StatusCancelled {
			return s.cancel(ctx, id, in.Notes)
		}
	}

	var updated uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		if in.Status != nil {
			if !model.CanTransition(order.Status, *in.Status) {
				return &InvalidTransitionError{From: order.Status, To: *in.Status}
			}
			order.Status = *in.Status
		} else if order.Status.IsTerminal() {
			return ErrOrderClosed
		}
		if in.Notes != nil {
			order.Notes = *in.Notes
		}

		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		updated = order.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.Get(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventOrderUpdated, order)
	return order, nil
}

// Cancel 取消订单并足额回补库存，随后发布 order_cancelled。
func (s *OrderService) Cancel(ctx context.Context, id uint) (*model.Order, error) {
	return s.cancel(ctx, id, nil)
}

func (s *OrderService) cancel(ctx context.Context, id uint, notes *string) (*model.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Preload("Items").First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		switch order.Status {
		case model.StatusCancelled:
			return ErrAlreadyCancelled
		case model.StatusCompleted:
			return ErrCannotCancelCompleted
		}

		// 按下单时的明细数量原样回补，与当初的扣减严格对称。
		for _, it := range order.Items {
			res := tx.Model(&model.Product{}).
				Where("id = ?", it.ProductID).
				Update("stock", gorm.Expr("stock + ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
		}

		order.Status = model.StatusCancelled
		if notes != nil {
			order.Notes = *notes
		}
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventOrderCancelled, order)
	return order, nil
}

func (s *OrderService) publish(typ string, o *model.Order) {
	ev := events.OrderEvent{
		Type:        typ,
		OrderID:     o.ID,
		OrderNumber: o.OrderNo,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	// 顾客信息缺失不影响事件本身。
	if o.Customer != nil {
		ev.CustomerName = o.Customer.FullName()
	}
	s.bus.Publish(ev)
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
