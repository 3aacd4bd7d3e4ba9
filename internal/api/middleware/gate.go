package middleware

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/pos"
	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

// AccountStatusGate blocks suspended and subscription-expired accounts at the
// edge. It runs after JWTAuth on every business route, so a freshly suspended
// account is cut off on its next request even if its token is still valid.
//
// Lookup failures let the request through. Blocking paying customers because
// the profile read hiccuped is worse than serving one extra request; policy
// violations themselves always block.
func AccountStatusGate(db *sql.DB, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		profile, err := storage.GetProfile(db, userID)
		if err != nil {
			logger.Warn("status gate profile lookup failed, allowing request",
				"user_id", userID, "error", err)
			c.Next()
			return
		}

		decision := pos.EvaluateAccess(pos.AccountSnapshot{
			Role:               profile.Role,
			IsSuspended:        profile.IsSuspended,
			SuspensionMessage:  profile.SuspensionMessage,
			SubscriptionEndsAt: profile.SubscriptionEndsAt,
		}, time.Now().UTC())

		if decision.Allowed {
			c.Next()
			return
		}

		appErr := utils.ErrAccountSuspended
		if decision.Verdict == pos.AccessSubscriptionExpired {
			appErr = utils.ErrSubscriptionExpired
		}

		logger.Info("status gate blocked request",
			"user_id", userID,
			"verdict", decision.Verdict,
			"path", c.Request.URL.Path)

		c.JSON(http.StatusForbidden, utils.NewGateResponse(appErr, decision.Redirect, utils.GenerateTraceID()))
		c.Abort()
	}
}
