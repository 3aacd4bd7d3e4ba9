package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type SaleHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
}

func NewSaleHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *SaleHandler {
	return &SaleHandler{db: db, logger: logger, config: config}
}

type saleItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
}

type createSaleRequest struct {
	DeviceID      string            `json:"device_id"`
	PaymentMethod string            `json:"payment_method"`
	Items         []saleItemRequest `json:"items" binding:"required"`
}

// Create records a sale. Prices and totals come from the product table at
// commit time, not from the request.
func (h *SaleHandler) Create(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req createSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sale requires at least one item", "code": "EMPTY_SALE"})
		return
	}

	method := req.PaymentMethod
	if method == "" {
		method = "cash"
	}
	switch method {
	case "cash", "card", "credit", "other":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payment method", "code": "INVALID_PAYMENT_METHOD"})
		return
	}

	sale := &storage.Sale{
		ProfileID:     userID,
		DeviceID:      req.DeviceID,
		PaymentMethod: method,
	}
	for _, item := range req.Items {
		sale.Items = append(sale.Items, storage.SaleItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	if err := storage.CreateSale(c.Request.Context(), h.db, sale); err != nil {
		h.logger.Error("sale creation failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "SALE_REJECTED"})
		return
	}

	if err := storage.RecordAnalyticsEvent(h.db.DB, userID, "sale_created", map[string]interface{}{
		"sale_id":     sale.ID,
		"total_cents": sale.TotalCents,
		"items":       len(sale.Items),
	}); err != nil {
		h.logger.Warn("analytics event failed", "error", err)
	}

	c.JSON(http.StatusCreated, sale)
}

func (h *SaleHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	from, to, err := parseDateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_RANGE"})
		return
	}

	sales, err := storage.ListSales(h.db.DB, userID, from, to, 0)
	if err != nil {
		h.logger.Error("sale list failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "List failed", "code": "INTERNAL_ERROR"})
		return
	}

	if sales == nil {
		sales = []*storage.Sale{}
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales, "from": from, "to": to})
}

func (h *SaleHandler) Get(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	sale, err := storage.GetSale(h.db.DB, userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sale not found", "code": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, sale)
}

type voidSaleRequest struct {
	PIN string `json:"pin"`
}

// Delete voids a sale. Accounts with a business PIN configured must supply it;
// the PIN guards the void the same way it guards the management screens.
func (h *SaleHandler) Delete(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	profile, err := storage.GetProfile(h.db.DB, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "code": "NOT_FOUND"})
		return
	}

	if len(profile.PINHash) > 0 {
		var req voidSaleRequest
		if err := c.ShouldBindJSON(&req); err != nil || !utils.VerifyPIN(req.PIN, profile.PINHash) {
			if err := storage.LogAuditEvent(h.db.DB, userID, "pin_verify_failed", map[string]interface{}{
				"sale_id": c.Param("id"),
			}); err != nil {
				h.logger.Warn("audit log failed", "error", err)
			}
			c.JSON(http.StatusForbidden, gin.H{"error": "Valid PIN required to void a sale", "code": "INVALID_PIN"})
			return
		}
	}

	if err := storage.DeleteSale(h.db.DB, userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sale not found", "code": "NOT_FOUND"})
		return
	}

	if err := storage.LogAuditEvent(h.db.DB, userID, "sale_deleted", map[string]interface{}{
		"sale_id": c.Param("id"),
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Sale deleted"})
}

// parseDateRange reads from/to query params as RFC 3339 or YYYY-MM-DD,
// defaulting to the last 30 days.
func parseDateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now.Add(24 * time.Hour)

	if raw := c.Query("from"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}

	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be after from")
	}
	return from, to, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
