package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type AuthHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
}

func NewAuthHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *AuthHandler {
	return &AuthHandler{db: db, logger: logger, config: config}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token        string `json:"token"`
	ExpiresAt    int64  `json:"expires_at"`
	ProfileID    string `json:"profile_id"`
	BusinessName string `json:"business_name"`
	Role         string `json:"role"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !utils.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format", "code": "INVALID_EMAIL"})
		return
	}

	profile, err := storage.GetProfileByEmail(h.db.DB, email)
	if err != nil {
		// same response as a bad password, no account enumeration
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "code": "INVALID_CREDENTIALS"})
		return
	}

	if profile.LockedUntil != nil && profile.LockedUntil.After(time.Now().UTC()) {
		c.JSON(http.StatusLocked, gin.H{"error": "Account temporarily locked", "code": "ACCOUNT_LOCKED"})
		return
	}

	if !utils.VerifyPassword(req.Password, profile.PasswordHash) {
		if err := storage.RecordFailedLogin(h.db.DB, profile.ID,
			h.config.Security.MaxLoginAttempts, h.config.Security.LockoutDuration); err != nil {
			h.logger.Warn("failed to record login attempt", "profile_id", profile.ID, "error", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "code": "INVALID_CREDENTIALS"})
		return
	}

	token, err := utils.GenerateJWT(profile.ID, profile.Email, profile.Role,
		h.config.Security.JWTSecret, h.config.Security.TokenValidity)
	if err != nil {
		h.logger.Error("token generation failed", "profile_id", profile.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed", "code": "INTERNAL_ERROR"})
		return
	}

	if err := storage.UpdateProfileLastLogin(h.db.DB, profile.ID); err != nil {
		h.logger.Warn("failed to update last login", "profile_id", profile.ID, "error", err)
	}

	if err := storage.LogAuditEvent(h.db.DB, profile.ID, "login", map[string]interface{}{
		"ip": c.ClientIP(),
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, loginResponse{
		Token:        token,
		ExpiresAt:    time.Now().UTC().Add(h.config.Security.TokenValidity).Unix(),
		ProfileID:    profile.ID,
		BusinessName: profile.BusinessName,
		Role:         profile.Role,
	})
}

type registerRequest struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	BusinessName string `json:"business_name" binding:"required"`
	PIN          string `json:"pin"`
}

// Register creates a business account. Only super admins may call it;
// self-service signup is deliberately not exposed.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !utils.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format", "code": "INVALID_EMAIL"})
		return
	}
	if !utils.IsStrongPassword(req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password too weak", "code": "WEAK_PASSWORD"})
		return
	}
	if !utils.IsValidBusinessName(req.BusinessName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid business name", "code": "INVALID_BUSINESS_NAME"})
		return
	}
	if req.PIN != "" && !utils.IsValidPIN(req.PIN) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "PIN must be 4 to 8 digits", "code": "INVALID_PIN"})
		return
	}

	if existing, _ := storage.GetProfileByEmail(h.db.DB, email); existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered", "code": "EMAIL_EXISTS"})
		return
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("password hashing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed", "code": "INTERNAL_ERROR"})
		return
	}

	var pinHash []byte
	if req.PIN != "" {
		pinHash, err = utils.HashPIN(req.PIN)
		if err != nil {
			h.logger.Error("pin hashing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed", "code": "INTERNAL_ERROR"})
			return
		}
	}

	now := time.Now().UTC()
	profile := &storage.Profile{
		ID:            uuid.New().String(),
		Email:         email,
		BusinessName:  utils.SanitizeInput(req.BusinessName),
		PasswordHash:  passwordHash,
		Role:          storage.RoleBusinessUser,
		PINHash:       pinHash,
		AutoClearDays: 90,
		CreatedAt:     now,
		UpdatedAt:     now,
		IsActive:      true,
	}

	if err := storage.CreateProfile(h.db.DB, profile); err != nil {
		h.logger.Error("profile creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed", "code": "INTERNAL_ERROR"})
		return
	}

	if err := storage.LogAuditEvent(h.db.DB, c.GetString("user_id"), "profile_created", map[string]interface{}{
		"new_profile_id": profile.ID,
		"email":          email,
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"profile_id":    profile.ID,
		"email":         profile.Email,
		"business_name": profile.BusinessName,
	})
}

// Refresh exchanges a still-valid token for a fresh one so a terminal that
// stays open past the 1-hour validity does not get dropped mid-shift.
func (h *AuthHandler) Refresh(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	profile, err := storage.GetProfile(h.db.DB, userID)
	if err != nil || !profile.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "code": "INVALID_CREDENTIALS"})
		return
	}

	if profile.LockedUntil != nil && profile.LockedUntil.After(time.Now().UTC()) {
		c.JSON(http.StatusLocked, gin.H{"error": "Account temporarily locked", "code": "ACCOUNT_LOCKED"})
		return
	}

	token, err := utils.GenerateJWT(profile.ID, profile.Email, profile.Role,
		h.config.Security.JWTSecret, h.config.Security.TokenValidity)
	if err != nil {
		h.logger.Error("token generation failed", "profile_id", profile.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Token:        token,
		ExpiresAt:    time.Now().UTC().Add(h.config.Security.TokenValidity).Unix(),
		ProfileID:    profile.ID,
		BusinessName: profile.BusinessName,
		Role:         profile.Role,
	})
}

// Logout removes the caller's active device session so another device can
// register without being treated as an eviction.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "UNAUTHORIZED"})
		return
	}

	if err := storage.RemoveDeviceSession(h.db.DB, userID); err != nil {
		h.logger.Warn("failed to remove device session on logout", "profile_id", userID, "error", err)
	}

	if err := storage.LogAuditEvent(h.db.DB, userID, "logout", map[string]interface{}{
		"ip": c.ClientIP(),
	}); err != nil {
		h.logger.Warn("audit log failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
