package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/pos"
	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type AnalyticsHandler struct {
	db        *storage.Database
	logger    utils.Logger
	analytics *pos.Analytics
}

func NewAnalyticsHandler(db *storage.Database, logger utils.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{db: db, logger: logger, analytics: pos.NewAnalytics(db.DB)}
}

func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
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

	data, err := h.analytics.Dashboard(userID, from, to)
	if err != nil {
		h.logger.Error("dashboard aggregation failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Aggregation failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, data)
}

type trackEventRequest struct {
	EventType string                 `json:"event_type" binding:"required"`
	Details   map[string]interface{} `json:"details"`
}

func (h *AnalyticsHandler) TrackEvent(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req trackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if err := storage.RecordAnalyticsEvent(h.db.DB, userID, utils.SanitizeInput(req.EventType), req.Details); err != nil {
		h.logger.Error("event tracking failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Tracking failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
