package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type ExpenseHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
}

func NewExpenseHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *ExpenseHandler {
	return &ExpenseHandler{db: db, logger: logger, config: config}
}

type expenseRequest struct {
	Description string `json:"description" binding:"required"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents" binding:"required"`
	IncurredAt  string `json:"incurred_at"`
}

func (h *ExpenseHandler) Create(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if req.AmountCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be positive", "code": "INVALID_AMOUNT"})
		return
	}

	incurredAt := time.Now().UTC()
	if req.IncurredAt != "" {
		parsed, err := parseDate(req.IncurredAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid incurred_at date", "code": "INVALID_DATE"})
			return
		}
		incurredAt = parsed
	}

	expense := &storage.Expense{
		ID:          uuid.New().String(),
		ProfileID:   userID,
		Description: utils.SanitizeInput(req.Description),
		Category:    utils.SanitizeInput(req.Category),
		AmountCents: req.AmountCents,
		IncurredAt:  incurredAt,
		CreatedAt:   time.Now().UTC(),
	}

	if err := storage.CreateExpense(h.db.DB, expense); err != nil {
		h.logger.Error("expense creation failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Creation failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusCreated, expense)
}

func (h *ExpenseHandler) List(c *gin.Context) {
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

	expenses, err := storage.ListExpenses(h.db.DB, userID, from, to)
	if err != nil {
		h.logger.Error("expense list failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "List failed", "code": "INTERNAL_ERROR"})
		return
	}

	if expenses == nil {
		expenses = []*storage.Expense{}
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses, "from": from, "to": to})
}

func (h *ExpenseHandler) Delete(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	if err := storage.DeleteExpense(h.db.DB, userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found", "code": "NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Expense deleted"})
}
