package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/pos"
	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type ProfileHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
}

func NewProfileHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *ProfileHandler {
	return &ProfileHandler{db: db, logger: logger, config: config}
}

// Status returns the account's current access verdict. The enforcement agent
// and the dashboard both poll this endpoint.
func (h *ProfileHandler) Status(c *gin.Context) {
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

	decision := pos.EvaluateAccess(pos.AccountSnapshot{
		Role:               profile.Role,
		IsSuspended:        profile.IsSuspended,
		SuspensionMessage:  profile.SuspensionMessage,
		SubscriptionEndsAt: profile.SubscriptionEndsAt,
	}, time.Now().UTC())

	c.JSON(http.StatusOK, gin.H{
		"decision":             decision,
		"business_name":        profile.BusinessName,
		"subscription_ends_at": profile.SubscriptionEndsAt,
	})
}

type verifyPINRequest struct {
	PIN string `json:"pin" binding:"required"`
}

// VerifyPIN checks the owner PIN that guards the management screens of a
// terminal. It never reveals whether a PIN is set.
func (h *ProfileHandler) VerifyPIN(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req verifyPINRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	profile, err := storage.GetProfile(h.db.DB, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "code": "NOT_FOUND"})
		return
	}

	valid := len(profile.PINHash) > 0 && utils.VerifyPIN(req.PIN, profile.PINHash)
	if !valid {
		if err := storage.LogAuditEvent(h.db.DB, userID, "pin_verify_failed", nil); err != nil {
			h.logger.Warn("audit log failed", "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

type settingsRequest struct {
	BusinessName     string `json:"business_name"`
	AutoClearEnabled *bool  `json:"auto_clear_enabled"`
	AutoClearDays    int    `json:"auto_clear_days"`
	PIN              string `json:"pin"`
}

func (h *ProfileHandler) UpdateSettings(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	profile, err := storage.GetProfile(h.db.DB, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "code": "NOT_FOUND"})
		return
	}

	businessName := profile.BusinessName
	if req.BusinessName != "" {
		if !utils.IsValidBusinessName(req.BusinessName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid business name", "code": "INVALID_BUSINESS_NAME"})
			return
		}
		businessName = utils.SanitizeInput(req.BusinessName)
	}

	autoClearEnabled := profile.AutoClearEnabled
	if req.AutoClearEnabled != nil {
		autoClearEnabled = *req.AutoClearEnabled
	}

	autoClearDays := profile.AutoClearDays
	if req.AutoClearDays > 0 {
		autoClearDays = req.AutoClearDays
	}

	if err := storage.UpdateProfileSettings(h.db.DB, userID, businessName, autoClearEnabled, autoClearDays); err != nil {
		h.logger.Error("settings update failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
		return
	}

	if req.PIN != "" {
		if !utils.IsValidPIN(req.PIN) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PIN must be 4 to 8 digits", "code": "INVALID_PIN"})
			return
		}
		pinHash, err := utils.HashPIN(req.PIN)
		if err != nil {
			h.logger.Error("pin hashing failed", "profile_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
			return
		}
		if err := storage.UpdateProfilePIN(h.db.DB, userID, pinHash); err != nil {
			h.logger.Error("pin update failed", "profile_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings updated"})
}

// ClearHistory purges sales, expenses and analytics events older than the
// requested number of days, immediately rather than waiting for the retention
// sweeper.
func (h *ProfileHandler) ClearHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req struct {
		OlderThanDays int `json:"older_than_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.OlderThanDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -req.OlderThanDays)
	sales, expenses, events, err := storage.PurgeHistoryBefore(h.db.DB, userID, cutoff)
	if err != nil {
		h.logger.Error("history clear failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Clear failed", "code": "INTERNAL_ERROR"})
		return
	}

	if err := storage.LogAuditEvent(h.db.DB, userID, "history_cleared", map[string]interface{}{
		"older_than_days":  req.OlderThanDays,
		"sales_deleted":    sales,
		"expenses_deleted": expenses,
		"events_deleted":   events,
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"sales_deleted": sales, "expenses_deleted": expenses, "events_deleted": events})
}
