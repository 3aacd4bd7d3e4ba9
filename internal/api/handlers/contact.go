package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

// ContactHandler forwards support messages to an external relay (a webhook
// or ticketing endpoint) so terminals never hold relay credentials.
type ContactHandler struct {
	db     *storage.Database
	logger utils.Logger
	config *utils.Config
	client *resty.Client
}

func NewContactHandler(db *storage.Database, logger utils.Logger, config *utils.Config) *ContactHandler {
	client := resty.New().
		SetTimeout(config.Contact.Timeout).
		SetRetryCount(2)

	return &ContactHandler{db: db, logger: logger, config: config, client: client}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// Submit relays a support message. The route is public: suspended accounts
// and visitors without a session must still be able to reach support, so the
// sender identity comes from the request and is enriched with profile data
// only when a token happens to be present.
func (h *ContactHandler) Submit(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "code": "INVALID_REQUEST"})
		return
	}

	if req.Email != "" && !utils.IsValidEmail(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format", "code": "INVALID_EMAIL"})
		return
	}

	if h.config.Contact.RelayURL == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Contact relay not configured", "code": "RELAY_DISABLED"})
		return
	}

	payload := map[string]string{
		"name":    utils.SanitizeInput(req.Name),
		"email":   req.Email,
		"subject": utils.SanitizeInput(req.Subject),
		"message": utils.SanitizeInput(req.Message),
	}

	userID := c.GetString("user_id")
	if userID != "" {
		if profile, err := storage.GetProfile(h.db.DB, userID); err == nil {
			payload["profile_id"] = profile.ID
			payload["business_name"] = profile.BusinessName
			if payload["email"] == "" {
				payload["email"] = profile.Email
			}
		}
	}

	resp, err := h.client.R().
		SetContext(c.Request.Context()).
		SetBody(payload).
		Post(h.config.Contact.RelayURL)
	if err != nil || resp.StatusCode() >= 400 {
		h.logger.Error("contact relay failed", "error", err)
		c.JSON(http.StatusBadGateway, utils.NewErrorResponse(utils.ErrRelayUnavailable, utils.GenerateTraceID()))
		return
	}

	if userID != "" {
		if err := storage.LogAuditEvent(h.db.DB, userID, "contact_submitted", map[string]interface{}{
			"subject": req.Subject,
		}); err != nil {
			h.logger.Warn("audit log failed", "error", err)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Message sent"})
}
