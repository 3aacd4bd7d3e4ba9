package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type ProductHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
}

func NewProductHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *ProductHandler {
	return &ProductHandler{db: db, logger: logger, config: config}
}

type productRequest struct {
	Name       string  `json:"name" binding:"required"`
	Category   string  `json:"category"`
	PriceCents int64   `json:"price_cents"`
	CostCents  int64   `json:"cost_cents"`
	Stock      float64 `json:"stock"`
	Unit       string  `json:"unit"`
	ImageURL   string  `json:"image_url"`
}

func (h *ProductHandler) Create(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if !utils.IsValidProductName(req.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product name", "code": "INVALID_PRODUCT_NAME"})
		return
	}
	if req.PriceCents < 0 || req.CostCents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prices cannot be negative", "code": "INVALID_PRICE"})
		return
	}

	unit := req.Unit
	if unit == "" {
		unit = "item"
	}

	now := time.Now().UTC()
	product := &storage.Product{
		ID:         uuid.New().String(),
		ProfileID:  userID,
		Name:       utils.SanitizeInput(req.Name),
		Category:   utils.SanitizeInput(req.Category),
		PriceCents: req.PriceCents,
		CostCents:  req.CostCents,
		Stock:      req.Stock,
		Unit:       unit,
		ImageURL:   req.ImageURL,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := storage.CreateProduct(h.db.DB, product); err != nil {
		h.logger.Error("product creation failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Creation failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	includeInactive := c.Query("include_inactive") == "true"
	products, err := storage.ListProducts(h.db.DB, userID, includeInactive)
	if err != nil {
		h.logger.Error("product list failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "List failed", "code": "INTERNAL_ERROR"})
		return
	}

	if products == nil {
		products = []*storage.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *ProductHandler) Get(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	product, err := storage.GetProduct(h.db.DB, userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "code": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Update(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	product, err := storage.GetProduct(h.db.DB, userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "code": "NOT_FOUND"})
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if !utils.IsValidProductName(req.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product name", "code": "INVALID_PRODUCT_NAME"})
		return
	}
	if req.PriceCents < 0 || req.CostCents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prices cannot be negative", "code": "INVALID_PRICE"})
		return
	}

	product.Name = utils.SanitizeInput(req.Name)
	product.Category = utils.SanitizeInput(req.Category)
	product.PriceCents = req.PriceCents
	product.CostCents = req.CostCents
	product.Stock = req.Stock
	if req.Unit != "" {
		product.Unit = req.Unit
	}
	product.ImageURL = req.ImageURL

	if err := storage.UpdateProduct(h.db.DB, product); err != nil {
		h.logger.Error("product update failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Delete(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	if err := storage.DeleteProduct(h.db.DB, userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "code": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}
