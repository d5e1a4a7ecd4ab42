package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coffee_pos/internal/events"
	"coffee_pos/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	// 内存库跟随连接存活，收敛到单连接
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&model.Category{}, &model.Product{}, &model.Customer{},
		&model.Order{}, &model.OrderItem{}, &model.OrderCounter{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*OrderService, *gorm.DB, <-chan events.OrderEvent) {
	t.Helper()
	db := testDB(t)
	bus := events.NewBus(32)
	id, ch := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(id) })
	svc := NewOrderService(db, bus)
	svc.now = func() time.Time {
		return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	}
	return svc, db, ch
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price float64, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: name, Price: price, SKU: "SKU-" + name, Stock: stock, IsActive: true}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func productStock(t *testing.T, db *gorm.DB, id uint) int64 {
	t.Helper()
	var p model.Product
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("load product %d: %v", id, err)
	}
	return p.Stock
}

func expectEvent(t *testing.T, ch <-chan events.OrderEvent, typ string) events.OrderEvent {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Type != typ {
			t.Fatalf("event type: got %s want %s", ev.Type, typ)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no %s event received", typ)
		return events.OrderEvent{}
	}
}

func expectNoEvent(t *testing.T, ch <-chan events.OrderEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s for order %d", ev.Type, ev.OrderID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCreateOrder(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if order.OrderNo != "ORD-20240101-0001" {
		t.Errorf("order number: got %s", order.OrderNo)
	}
	if order.Status != model.StatusPending {
		t.Errorf("status: got %s", order.Status)
	}
	if order.TotalAmount != 9.98 {
		t.Errorf("total: got %v", order.TotalAmount)
	}
	if len(order.Items) != 1 {
		t.Fatalf("items: got %d", len(order.Items))
	}
	it := order.Items[0]
	if it.UnitPrice != 4.99 || it.Subtotal != 9.98 || it.Quantity != 2 {
		t.Errorf("item snapshot: unit=%v subtotal=%v qty=%d", it.UnitPrice, it.Subtotal, it.Quantity)
	}
	if got := productStock(t, db, latte.ID); got != 8 {
		t.Errorf("stock after create: got %d want 8", got)
	}

	ev := expectEvent(t, ch, events.EventOrderCreated)
	if ev.OrderNumber != order.OrderNo || ev.TotalAmount != 9.98 || ev.Status != model.StatusPending {
		t.Errorf("event payload: %+v", ev)
	}
}

func TestCreateOrderMultiLine(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)
	mocha := seedProduct(t, db, "Mocha", 5.50, 3)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{
			{ProductID: latte.ID, Quantity: 2},
			{ProductID: mocha.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	want := 4.99*2 + 5.50*3
	if order.TotalAmount != want {
		t.Errorf("total: got %v want %v", order.TotalAmount, want)
	}
	if got := productStock(t, db, mocha.ID); got != 0 {
		t.Errorf("mocha stock: got %d want 0", got)
	}
	expectEvent(t, ch, events.EventOrderCreated)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 1)

	_, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 5}},
	})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if stockErr.Requested != 5 || stockErr.Available != 1 {
		t.Errorf("error detail: requested=%d available=%d", stockErr.Requested, stockErr.Available)
	}

	if got := productStock(t, db, latte.ID); got != 1 {
		t.Errorf("stock must be untouched: got %d", got)
	}
	var count int64
	db.Model(&model.Order{}).Count(&count)
	if count != 0 {
		t.Errorf("no order should exist, got %d", count)
	}
	expectNoEvent(t, ch)
}

func TestCreateOrderRollsBackEarlierLines(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)
	mocha := seedProduct(t, db, "Mocha", 5.50, 1)

	// 第二行库存不足，第一行已扣的部分必须随事务回滚
	_, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{
			{ProductID: latte.ID, Quantity: 2},
			{ProductID: mocha.ID, Quantity: 5},
		},
	})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if got := productStock(t, db, latte.ID); got != 10 {
		t.Errorf("latte stock after rollback: got %d want 10", got)
	}
	if got := productStock(t, db, mocha.ID); got != 1 {
		t.Errorf("mocha stock after rollback: got %d want 1", got)
	}
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc, _, ch := newTestService(t)

	_, err := svc.Create(context.Background(), CreateOrderInput{
		Items: []OrderItemInput{{ProductID: 999, Quantity: 1}},
	})
	var nf *ProductNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want ProductNotFoundError, got %v", err)
	}
	if nf.ProductID != 999 {
		t.Errorf("product id in error: got %d", nf.ProductID)
	}
	expectNoEvent(t, ch)
}

func TestCreateOrderInactiveProduct(t *testing.T) {
	svc, db, ch := newTestService(t)
	p := seedProduct(t, db, "Retired", 3.00, 5)
	if err := db.Model(&model.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := svc.Create(context.Background(), CreateOrderInput{
		Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	var inactive *ProductInactiveError
	if !errors.As(err, &inactive) {
		t.Fatalf("want ProductInactiveError, got %v", err)
	}
	if got := productStock(t, db, p.ID); got != 5 {
		t.Errorf("stock: got %d want 5", got)
	}
	expectNoEvent(t, ch)
}

func TestCreateOrderInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateOrderInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty items: got %v", err)
	}
	if _, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: 1, Quantity: 0}},
	}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero quantity: got %v", err)
	}
}

func TestOrderNumbersIncrementWithinDay(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 100)

	first, err := svc.Create(ctx, CreateOrderInput{Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}}})
	if err != nil {
		t.Fatalf("create #1: %v", err)
	}
	second, err := svc.Create(ctx, CreateOrderInput{Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}}})
	if err != nil {
		t.Fatalf("create #2: %v", err)
	}
	if first.OrderNo != "ORD-20240101-0001" || second.OrderNo != "ORD-20240101-0002" {
		t.Errorf("order numbers: %s, %s", first.OrderNo, second.OrderNo)
	}

	// 跨天后序号归一
	svc.now = func() time.Time {
		return time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	}
	third, err := svc.Create(ctx, CreateOrderInput{Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}}})
	if err != nil {
		t.Fatalf("create #3: %v", err)
	}
	if third.OrderNo != "ORD-20240102-0001" {
		t.Errorf("next day order number: %s", third.OrderNo)
	}
}

func TestPriceSnapshotImmuneToLaterChange(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := db.Model(&model.Product{}).Where("id = ?", latte.ID).Update("price", 6.99).Error; err != nil {
		t.Fatalf("reprice: %v", err)
	}

	got, err := svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalAmount != 9.98 || got.Items[0].UnitPrice != 4.99 {
		t.Errorf("snapshot changed: total=%v unit=%v", got.TotalAmount, got.Items[0].UnitPrice)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)
	if got := productStock(t, db, latte.ID); got != 7 {
		t.Fatalf("stock after create: got %d", got)
	}

	cancelled, err := svc.Cancel(ctx, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("status: got %s", cancelled.Status)
	}
	if got := productStock(t, db, latte.ID); got != 10 {
		t.Errorf("stock after cancel: got %d want 10", got)
	}

	ev := expectEvent(t, ch, events.EventOrderCancelled)
	if ev.Status != model.StatusCancelled {
		t.Errorf("event status: %s", ev.Status)
	}
}

func TestCancelTwice(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)

	if _, err := svc.Cancel(ctx, order.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCancelled)

	if _, err := svc.Cancel(ctx, order.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second cancel: got %v", err)
	}
	// 重复取消绝不能再回补
	if got := productStock(t, db, latte.ID); got != 10 {
		t.Errorf("stock after double cancel: got %d want 10", got)
	}
	expectNoEvent(t, ch)
}

func TestCancelCompletedOrder(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)

	for _, st := range []model.OrderStatus{
		model.StatusConfirmed, model.StatusPreparing, model.StatusReady, model.StatusCompleted,
	} {
		s := st
		if _, err := svc.Update(ctx, order.ID, UpdateOrderInput{Status: &s}); err != nil {
			t.Fatalf("advance to %s: %v", st, err)
		}
		expectEvent(t, ch, events.EventOrderUpdated)
	}

	if _, err := svc.Cancel(ctx, order.ID); !errors.Is(err, ErrCannotCancelCompleted) {
		t.Fatalf("cancel completed: got %v", err)
	}
	if got := productStock(t, db, latte.ID); got != 9 {
		t.Errorf("completed order keeps its stock: got %d want 9", got)
	}
	expectNoEvent(t, ch)
}

func TestCancelMissingOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Cancel(context.Background(), 12345); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestUpdateRejectsSkippedTransition(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)

	ready := model.StatusReady
	_, err = svc.Update(ctx, order.ID, UpdateOrderInput{Status: &ready})
	var bad *InvalidTransitionError
	if !errors.As(err, &bad) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
	if bad.From != model.StatusPending || bad.To != model.StatusReady {
		t.Errorf("transition in error: %s -> %s", bad.From, bad.To)
	}

	got, err := svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status must be unchanged: got %s", got.Status)
	}
	expectNoEvent(t, ch)
}

func TestUpdateStatusCancelledRestoresStock(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)

	// PATCH 到 CANCELLED 必须走完整取消语义，而不是只改字段
	cancelled := model.StatusCancelled
	updated, err := svc.Update(ctx, order.ID, UpdateOrderInput{Status: &cancelled})
	if err != nil {
		t.Fatalf("update to cancelled: %v", err)
	}
	if updated.Status != model.StatusCancelled {
		t.Errorf("status: got %s", updated.Status)
	}
	if got := productStock(t, db, latte.ID); got != 10 {
		t.Errorf("stock restored: got %d want 10", got)
	}
	expectEvent(t, ch, events.EventOrderCancelled)
}

func TestUpdateNotesOnly(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)

	notes := "oat milk"
	updated, err := svc.Update(ctx, order.ID, UpdateOrderInput{Notes: &notes})
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if updated.Notes != "oat milk" || updated.Status != model.StatusPending {
		t.Errorf("got notes=%q status=%s", updated.Notes, updated.Status)
	}
	expectEvent(t, ch, events.EventOrderUpdated)
}

func TestUpdateRejectedOnTerminalOrder(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)
	if _, err := svc.Cancel(ctx, order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCancelled)

	notes := "too late"
	if _, err := svc.Update(ctx, order.ID, UpdateOrderInput{Notes: &notes}); !errors.Is(err, ErrOrderClosed) {
		t.Fatalf("notes on cancelled order: got %v", err)
	}
	expectNoEvent(t, ch)
}

func TestUpdateInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Update(ctx, 1, UpdateOrderInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty update: got %v", err)
	}
	bogus := model.OrderStatus("SHIPPED")
	if _, err := svc.Update(ctx, 1, UpdateOrderInput{Status: &bogus}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown status: got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, ch, events.EventOrderCreated)

	steps := []model.OrderStatus{
		model.StatusConfirmed, model.StatusPreparing, model.StatusReady, model.StatusCompleted,
	}
	for _, st := range steps {
		s := st
		got, err := svc.Update(ctx, order.ID, UpdateOrderInput{Status: &s})
		if err != nil {
			t.Fatalf("advance to %s: %v", st, err)
		}
		if got.Status != st {
			t.Fatalf("status after advance: got %s want %s", got.Status, st)
		}
		ev := expectEvent(t, ch, events.EventOrderUpdated)
		if ev.Status != st {
			t.Errorf("event status: got %s want %s", ev.Status, st)
		}
	}
}

func TestListOrders(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 100)

	var lastID uint
	for i := 0; i < 3; i++ {
		o, err := svc.Create(ctx, CreateOrderInput{Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}}})
		if err != nil {
			t.Fatalf("create #%d: %v", i, err)
		}
		lastID = o.ID
	}
	if _, err := svc.Cancel(ctx, lastID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	all, total, err := svc.List(ctx, 1, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Errorf("list all: total=%d len=%d", total, len(all))
	}

	pending, total, err := svc.List(ctx, 1, 10, model.StatusPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if total != 2 || len(pending) != 2 {
		t.Errorf("list pending: total=%d len=%d", total, len(pending))
	}

	paged, total, err := svc.List(ctx, 2, 2, "")
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if total != 3 || len(paged) != 1 {
		t.Errorf("page 2 limit 2: total=%d len=%d", total, len(paged))
	}

	if _, _, err := svc.List(ctx, 1, 10, model.OrderStatus("SHIPPED")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bogus status filter: got %v", err)
	}
}

func TestEventCarriesCustomerName(t *testing.T) {
	svc, db, ch := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 10)

	cust := model.Customer{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"}
	if err := db.Create(&cust).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	_, err := svc.Create(ctx, CreateOrderInput{
		CustomerID: &cust.ID,
		Items:      []OrderItemInput{{ProductID: latte.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ev := expectEvent(t, ch, events.EventOrderCreated)
	if ev.CustomerName != "Jane Doe" {
		t.Errorf("customer name in event: got %q", ev.CustomerName)
	}
}

func TestConcurrentLastUnit(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	latte := seedProduct(t, db, "Latte", 4.99, 1)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, CreateOrderInput{
				Items: []OrderItemInput{{ProductID: latte.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		var stockErr *InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Errorf("unexpected error: %v", err)
			continue
		}
		lost++
	}
	if won != 1 || lost != workers-1 {
		t.Errorf("exactly one request may win: won=%d lost=%d", won, lost)
	}
	if got := productStock(t, db, latte.ID); got != 0 {
		t.Errorf("stock: got %d want 0", got)
	}
}
