package router

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"coffee_pos/internal/config"
	"coffee_pos/internal/events"
	"coffee_pos/internal/middleware"
	"coffee_pos/internal/model"
	"coffee_pos/internal/service"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Setup 注册全部 HTTP 路由。rdb 为 nil 时不启用下单限流。
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, orders *service.OrderService, bus *events.Bus, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Catalog / customers：薄 CRUD，无业务不变量（唯一约束除外）
	r.GET("/api/products", listProducts(db))
	r.POST("/api/products", createProduct(db))
	r.GET("/api/products/:id", getProduct(db))
	r.PUT("/api/products/:id", updateProduct(db))
	r.DELETE("/api/products/:id", deleteProduct(db))

	r.GET("/api/categories", listCategories(db))
	r.POST("/api/categories", createCategory(db))
	r.GET("/api/categories/:id", getCategory(db))
	r.PUT("/api/categories/:id", updateCategory(db))
	r.DELETE("/api/categories/:id", deleteCategory(db))

	r.GET("/api/customers", listCustomers(db))
	r.POST("/api/customers", createCustomer(db))
	r.GET("/api/customers/:id", getCustomer(db))
	r.PUT("/api/customers/:id", updateCustomer(db))
	r.DELETE("/api/customers/:id", deleteCustomer(db))

	// Orders：核心流程
	if rdb != nil {
		r.POST("/api/orders", middleware.RedisRateLimit(rdb, cfg.OrderRateLimit, cfg.OrderRateWindow), createOrder(orders))
	} else {
		r.POST("/api/orders", createOrder(orders))
	}
	r.GET("/api/orders", listOrders(orders))
	r.GET("/api/orders/:id", getOrder(orders))
	r.PATCH("/api/orders/:id", updateOrder(orders))
	r.POST("/api/orders/:id/cancel", cancelOrder(orders))

	// SSE 事件流（后厨大屏等实时订阅）
	r.GET("/api/events/orders", orderEvents(bus))
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": msg})
}

// orderErrStatus 将服务层错误映射为 HTTP 状态码。
func orderErrStatus(err error) int {
	var (
		notFound   *service.ProductNotFoundError
		inactive   *service.ProductInactiveError
		noStock    *service.InsufficientStockError
		badTransit *service.InvalidTransitionError
	)
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrCannotCancelCompleted),
		errors.Is(err, service.ErrOrderClosed),
		errors.As(err, &notFound),
		errors.As(err, &inactive),
		errors.As(err, &noStock),
		errors.As(err, &badTransit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ---- Orders ----

type orderItemReq struct {
	ProductID uint `json:"product_id" binding:"required,min=1"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

type createOrderReq struct {
	CustomerID *uint          `json:"customer_id"`
	Notes      string         `json:"notes"`
	Items      []orderItemReq `json:"items" binding:"required,min=1,dive"`
}

// createOrder 下单入口：绑定失败返回 422，领域错误返回 400，成功 201。
func createOrder(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": 422, "msg": err.Error()})
			return
		}

		in := service.CreateOrderInput{
			CustomerID: req.CustomerID,
			Notes:      req.Notes,
			Items:      make([]service.OrderItemInput, 0, len(req.Items)),
		}
		for _, it := range req.Items {
			in.Items = append(in.Items, service.OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
		}

		order, err := orders.Create(c.Request.Context(), in)
		if err != nil {
			c.JSON(orderErrStatus(err), gin.H{"code": orderErrStatus(err), "msg": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": order})
	}
}

func listOrders(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		status := model.OrderStatus(c.Query("status"))

		list, total, err := orders.List(c.Request.Context(), page, limit, status)
		if err != nil {
			c.JSON(orderErrStatus(err), gin.H{"code": orderErrStatus(err), "msg": err.Error()})
			return
		}
		if page < 1 {
			page = 1
		}
		if limit < 1 || limit > 100 {
			limit = 10
		}
		totalPages := (total + int64(limit) - 1) / int64(limit)
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": list,
			"meta": gin.H{
				"total":       total,
				"page":        page,
				"limit":       limit,
				"total_pages": totalPages,
			},
		})
	}
}

func getOrder(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid order id")
			return
		}
		order, err := orders.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(orderErrStatus(err), gin.H{"code": orderErrStatus(err), "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": order})
	}
}

type updateOrderReq struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func updateOrder(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid order id")
			return
		}
		var req updateOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}

		in := service.UpdateOrderInput{Notes: req.Notes}
		if req.Status != nil {
			st := model.OrderStatus(*req.Status)
			in.Status = &st
		}

		order, err := orders.Update(c.Request.Context(), id, in)
		if err != nil {
			c.JSON(orderErrStatus(err), gin.H{"code": orderErrStatus(err), "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": order})
	}
}

func cancelOrder(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid order id")
			return
		}
		order, err := orders.Cancel(c.Request.Context(), id)
		if err != nil {
			c.JSON(orderErrStatus(err), gin.H{"code": orderErrStatus(err), "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": order})
	}
}

// orderEvents SSE 推送：每条已发布事件编码成一个 order_event。
// 客户端断开（请求 context 结束）即退订，不影响其他订阅者。
func orderEvents(bus *events.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ch := bus.Subscribe()
		defer bus.Unsubscribe(id)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("order_event", ev)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
