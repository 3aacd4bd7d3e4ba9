package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type DeviceHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
}

func NewDeviceHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *DeviceHandler {
	return &DeviceHandler{db: db, logger: logger, config: config}
}

type registerDeviceRequest struct {
	DeviceID   string `json:"device_id" binding:"required"`
	DeviceName string `json:"device_name"`
}

// Register claims the single session slot for the caller's account. If
// another device holds it, that device is evicted and reported in the
// response so its next authorization check fails.
func (h *DeviceHandler) Register(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if !utils.IsValidDeviceID(req.DeviceID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device identifier", "code": "INVALID_DEVICE_ID"})
		return
	}

	session := &storage.DeviceSession{
		ProfileID:  userID,
		DeviceID:   req.DeviceID,
		DeviceName: utils.SanitizeInput(req.DeviceName),
		UserAgent:  c.Request.UserAgent(),
		IPAddress:  c.ClientIP(),
	}

	result, err := storage.RegisterDeviceSession(c.Request.Context(), h.db, userID, session)
	if err != nil {
		h.logger.Error("device registration failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed", "code": "INTERNAL_ERROR"})
		return
	}

	if result.Kicked {
		h.logger.Info("device evicted",
			"profile_id", userID,
			"kicked_device", result.KickedDeviceID,
			"new_device", req.DeviceID)
	}

	if err := storage.LogAuditEvent(h.db.DB, userID, "device_registered", map[string]interface{}{
		"device_id": req.DeviceID,
		"action":    result.Action,
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, result)
}

// Authorized reports whether the querying device still holds the session
// slot. The enforcement agent polls this endpoint.
func (h *DeviceHandler) Authorized(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	deviceID := c.Query("device_id")
	if !utils.IsValidDeviceID(deviceID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device identifier", "code": "INVALID_DEVICE_ID"})
		return
	}

	exists, err := storage.DeviceSessionExists(h.db.DB, userID, deviceID)
	if err != nil {
		h.logger.Error("authorization check failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Check failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authorized": exists})
}

type heartbeatRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

// Heartbeat refreshes last_active for the calling device. Updating a device
// that no longer holds the slot is a no-op rather than an error.
func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if err := storage.TouchDeviceActivity(h.db.DB, userID, req.DeviceID); err != nil {
		h.logger.Warn("heartbeat update failed", "profile_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// List returns the account's registered devices. With single-active-session
// the list holds at most one entry, but the shape stays a list so a future
// multi-device plan does not change the contract.
func (h *DeviceHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	session, err := storage.GetDeviceSession(h.db.DB, userID)
	if err != nil {
		h.logger.Error("session lookup failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed", "code": "INTERNAL_ERROR"})
		return
	}

	devices := []*storage.DeviceSession{}
	if session != nil {
		devices = append(devices, session)
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// Remove frees the session slot held by the given device without registering
// a replacement.
func (h *DeviceHandler) Remove(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	deviceID := c.Param("id")
	if !utils.IsValidDeviceID(deviceID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device identifier", "code": "INVALID_DEVICE_ID"})
		return
	}

	removed, err := storage.RemoveDeviceByID(h.db.DB, userID, deviceID)
	if err != nil {
		h.logger.Error("session removal failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Removal failed", "code": "INTERNAL_ERROR"})
		return
	}

	if removed {
		if err := storage.LogAuditEvent(h.db.DB, userID, "device_removed", map[string]interface{}{
			"device_id": deviceID,
		}); err != nil {
			h.logger.Warn("audit log failed", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// PairQR renders a QR code embedding a one-shot pairing URL so a phone can
// open the terminal login pre-filled with the business account.
func (h *DeviceHandler) PairQR(c *gin.Context) {
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

	pairURL := fmt.Sprintf("https://%s/pair?account=%s", c.Request.Host, profile.ID)
	png, err := qrcode.Encode(pairURL, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("qr encoding failed", "profile_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "QR generation failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pair_url": pairURL,
		"qr_png":   base64.StdEncoding.EncodeToString(png),
	})
}
