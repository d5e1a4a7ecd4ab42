package router

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"coffee_pos/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 目录与顾客管理是订单核心之外的薄数据层，handler 直接走 gorm。

func notFoundOr500(c *gin.Context, err error, msg string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": msg})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
}

func createConflictOr500(c *gin.Context, err error) {
	// 唯一键冲突（SKU / slug / email 重复）报 400，其余当内部错误。
	if errorsLikeUnique(err) {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}

// ---- Products ----

func listProducts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db
		if v := c.Query("category_id"); v != "" {
			if id, err := strconv.ParseUint(v, 10, 32); err == nil {
				q = q.Where("category_id = ?", uint(id))
			}
		}
		if v := c.Query("active"); v != "" {
			q = q.Where("is_active = ?", v == "true")
		}
		var list []model.Product
		if err := q.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name        string  `json:"name" binding:"required"`
			Description string  `json:"description"`
			Price       float64 `json:"price" binding:"required,gt=0"`
			SKU         string  `json:"sku" binding:"required"`
			Stock       int64   `json:"stock" binding:"min=0"`
			IsActive    *bool   `json:"is_active"`
			ImageURL    string  `json:"image_url"`
			CategoryID  uint    `json:"category_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p := &model.Product{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			SKU:         req.SKU,
			Stock:       req.Stock,
			IsActive:    true,
			ImageURL:    req.ImageURL,
			CategoryID:  req.CategoryID,
		}
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}
		if err := db.Create(p).Error; err != nil {
			createConflictOr500(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": p})
	}
}

func getProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid product id")
			return
		}
		var p model.Product
		if err := db.First(&p, id).Error; err != nil {
			notFoundOr500(c, err, "product not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func updateProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid product id")
			return
		}
		var p model.Product
		if err := db.First(&p, id).Error; err != nil {
			notFoundOr500(c, err, "product not found")
			return
		}
		var req struct {
			Name        string  `json:"name" binding:"required"`
			Description string  `json:"description"`
			Price       float64 `json:"price" binding:"required,gt=0"`
			Stock       int64   `json:"stock" binding:"min=0"`
			IsActive    *bool   `json:"is_active"`
			ImageURL    string  `json:"image_url"`
			CategoryID  uint    `json:"category_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p.Name = req.Name
		p.Description = req.Description
		p.Price = req.Price
		p.Stock = req.Stock
		p.ImageURL = req.ImageURL
		p.CategoryID = req.CategoryID
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}
		if err := db.Save(&p).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func deleteProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid product id")
			return
		}
		res := db.Delete(&model.Product{}, id)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "product not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ---- Categories ----

func listCategories(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Category
		if err := db.Order("display_order ASC").Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name         string `json:"name" binding:"required"`
			Description  string `json:"description"`
			Slug         string `json:"slug" binding:"required"`
			DisplayOrder int    `json:"display_order"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		cat := &model.Category{
			Name:         req.Name,
			Description:  req.Description,
			Slug:         req.Slug,
			IsActive:     true,
			DisplayOrder: req.DisplayOrder,
		}
		if err := db.Create(cat).Error; err != nil {
			createConflictOr500(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": cat})
	}
}

func getCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid category id")
			return
		}
		var cat model.Category
		if err := db.First(&cat, id).Error; err != nil {
			notFoundOr500(c, err, "category not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cat})
	}
}

func updateCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid category id")
			return
		}
		var cat model.Category
		if err := db.First(&cat, id).Error; err != nil {
			notFoundOr500(c, err, "category not found")
			return
		}
		var req struct {
			Name         string `json:"name" binding:"required"`
			Description  string `json:"description"`
			Slug         string `json:"slug" binding:"required"`
			IsActive     *bool  `json:"is_active"`
			DisplayOrder int    `json:"display_order"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		cat.Name = req.Name
		cat.Description = req.Description
		cat.Slug = req.Slug
		cat.DisplayOrder = req.DisplayOrder
		if req.IsActive != nil {
			cat.IsActive = *req.IsActive
		}
		if err := db.Save(&cat).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cat})
	}
}

func deleteCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid category id")
			return
		}
		res := db.Delete(&model.Category{}, id)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "category not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ---- Customers ----

func listCustomers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Customer
		if err := db.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createCustomer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email     string `json:"email" binding:"required,email"`
			FirstName string `json:"first_name" binding:"required"`
			LastName  string `json:"last_name" binding:"required"`
			Phone     string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		cust := &model.Customer{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		}
		if err := db.Create(cust).Error; err != nil {
			createConflictOr500(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": cust})
	}
}

func getCustomer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid customer id")
			return
		}
		var cust model.Customer
		if err := db.First(&cust, id).Error; err != nil {
			notFoundOr500(c, err, "customer not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cust})
	}
}

func updateCustomer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid customer id")
			return
		}
		var cust model.Customer
		if err := db.First(&cust, id).Error; err != nil {
			notFoundOr500(c, err, "customer not found")
			return
		}
		var req struct {
			Email     string `json:"email" binding:"required,email"`
			FirstName string `json:"first_name" binding:"required"`
			LastName  string `json:"last_name" binding:"required"`
			Phone     string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		cust.Email = req.Email
		cust.FirstName = req.FirstName
		cust.LastName = req.LastName
		cust.Phone = req.Phone
		if err := db.Save(&cust).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cust})
	}
}

func deleteCustomer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid customer id")
			return
		}
		res := db.Delete(&model.Customer{}, id)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "customer not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
