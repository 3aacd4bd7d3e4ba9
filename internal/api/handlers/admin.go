package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

// AdminHandler exposes the super admin operations: listing businesses,
// suspending them and moving subscription end dates. All routes are behind
// a super_admin role check.
type AdminHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
}

func NewAdminHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *AdminHandler {
	return &AdminHandler{db: db, logger: logger, config: config}
}

func (h *AdminHandler) ListBusinesses(c *gin.Context) {
	profiles, err := storage.ListProfiles(h.db.DB)
	if err != nil {
		h.logger.Error("profile list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "List failed", "code": "INTERNAL_ERROR"})
		return
	}

	type businessSummary struct {
		ID                 string     `json:"id"`
		Email              string     `json:"email"`
		BusinessName       string     `json:"business_name"`
		Role               string     `json:"role"`
		IsSuspended        bool       `json:"is_suspended"`
		SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`
		IsActive           bool       `json:"is_active"`
		LastLogin          *time.Time `json:"last_login"`
		CreatedAt          time.Time  `json:"created_at"`
	}

	summaries := make([]businessSummary, 0, len(profiles))
	for _, p := range profiles {
		summaries = append(summaries, businessSummary{
			ID:                 p.ID,
			Email:              p.Email,
			BusinessName:       p.BusinessName,
			Role:               p.Role,
			IsSuspended:        p.IsSuspended,
			SubscriptionEndsAt: p.SubscriptionEndsAt,
			IsActive:           p.IsActive,
			LastLogin:          p.LastLogin,
			CreatedAt:          p.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"businesses": summaries})
}

type suspendRequest struct {
	Suspended bool   `json:"suspended"`
	Message   string `json:"message"`
}

// Suspend flips an account's suspension flag. The target's terminals see the
// change on their next status poll; there is no push channel.
func (h *AdminHandler) Suspend(c *gin.Context) {
	targetID := c.Param("id")

	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	target, err := storage.GetProfile(h.db.DB, targetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "code": "NOT_FOUND"})
		return
	}
	if target.Role == storage.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot suspend an admin account", "code": "FORBIDDEN"})
		return
	}

	if err := storage.SetSuspension(h.db.DB, targetID, req.Suspended, utils.SanitizeInput(req.Message)); err != nil {
		h.logger.Error("suspension update failed", "target_id", targetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
		return
	}

	action := "account_unsuspended"
	if req.Suspended {
		action = "account_suspended"
	}
	if err := storage.LogAuditEvent(h.db.DB, c.GetString("user_id"), action, map[string]interface{}{
		"target_id": targetID,
		"message":   req.Message,
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Suspension updated", "suspended": req.Suspended})
}

type subscriptionRequest struct {
	// RFC 3339 timestamp, or null to make the subscription perpetual.
	EndsAt *time.Time `json:"ends_at"`
}

func (h *AdminHandler) SetSubscription(c *gin.Context) {
	targetID := c.Param("id")

	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if _, err := storage.GetProfile(h.db.DB, targetID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "code": "NOT_FOUND"})
		return
	}

	if err := storage.SetSubscriptionEnd(h.db.DB, targetID, req.EndsAt); err != nil {
		h.logger.Error("subscription update failed", "target_id", targetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
		return
	}

	if err := storage.LogAuditEvent(h.db.DB, c.GetString("user_id"), "subscription_updated", map[string]interface{}{
		"target_id": targetID,
		"ends_at":   req.EndsAt,
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription updated", "ends_at": req.EndsAt})
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetPassword sets a new password for a business account and clears any
// login lockout. Admin accounts cannot be reset this way.
func (h *AdminHandler) ResetPassword(c *gin.Context) {
	targetID := c.Param("id")

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}
	if !utils.IsStrongPassword(req.NewPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password too weak", "code": "WEAK_PASSWORD"})
		return
	}

	target, err := storage.GetProfile(h.db.DB, targetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "code": "NOT_FOUND"})
		return
	}
	if target.Role == storage.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot reset an admin account", "code": "FORBIDDEN"})
		return
	}

	passwordHash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("password hashing failed", "target_id", targetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
		return
	}

	if err := storage.UpdateProfilePassword(h.db.DB, targetID, passwordHash); err != nil {
		h.logger.Error("password reset failed", "target_id", targetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
		return
	}

	if err := storage.LogAuditEvent(h.db.DB, c.GetString("user_id"), "password_reset", map[string]interface{}{
		"target_id": targetID,
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset"})
}

func (h *AdminHandler) Deactivate(c *gin.Context) {
	targetID := c.Param("id")

	target, err := storage.GetProfile(h.db.DB, targetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "code": "NOT_FOUND"})
		return
	}
	if target.Role == storage.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot deactivate an admin account", "code": "FORBIDDEN"})
		return
	}

	if err := storage.DeactivateProfile(h.db.DB, targetID); err != nil {
		h.logger.Error("deactivation failed", "target_id", targetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed", "code": "INTERNAL_ERROR"})
		return
	}

	if err := storage.RemoveDeviceSession(h.db.DB, targetID); err != nil {
		h.logger.Warn("failed to remove session for deactivated account", "target_id", targetID, "error", err)
	}

	if err := storage.LogAuditEvent(h.db.DB, c.GetString("user_id"), "account_deactivated", map[string]interface{}{
		"target_id": targetID,
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deactivated"})
}

func (h *AdminHandler) AuditLog(c *gin.Context) {
	targetID := c.Param("id")

	logs, err := storage.GetAuditLogs(h.db.DB, targetID, 100)
	if err != nil {
		h.logger.Error("audit log query failed", "target_id", targetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed", "code": "INTERNAL_ERROR"})
		return
	}

	if logs == nil {
		logs = []*storage.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
