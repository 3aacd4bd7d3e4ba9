package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

var (
	authLimiters    = make(map[string]*rate.Limiter)
	authLimitersMu  sync.Mutex
	authCleanupOnce sync.Once
)

func authRateLimiter(ip string) *rate.Limiter {
	authLimitersMu.Lock()
	defer authLimitersMu.Unlock()

	authCleanupOnce.Do(func() {
		go func() {
			for range time.Tick(5 * time.Minute) {
				authLimitersMu.Lock()
				authLimiters = make(map[string]*rate.Limiter)
				authLimitersMu.Unlock()
			}
		}()
	})

	limiter, exists := authLimiters[ip]
	if !exists {
		// generous burst, several terminals can sit behind one NAT
		limiter = rate.NewLimiter(rate.Limit(20), 100)
		authLimiters[ip] = limiter
	}
	return limiter
}

// JWTAuth validates the bearer token and stashes the caller's identity in the
// gin context under user_id, user_email, user_role and session_id.
func JWTAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authRateLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, utils.NewErrorResponse(utils.ErrRateLimitExceeded, utils.GenerateTraceID()))
			c.Abort()
			return
		}

		token, ok := utils.IsValidBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(utils.ErrUnauthorized, utils.GenerateTraceID()))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(utils.ErrInvalidToken, utils.GenerateTraceID()))
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Set("session_id", claims.SessionID)
		c.Next()
	}
}

// OptionalJWTAuth stashes the caller's identity when a valid bearer token is
// present but never rejects the request. For public routes that enrich their
// behavior for signed-in callers.
func OptionalJWTAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.IsValidBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		claims, err := utils.ValidateJWT(token, jwtSecret)
		if err != nil {
			c.Next()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Set("session_id", claims.SessionID)
		c.Next()
	}
}

// RequireRole rejects callers whose token does not carry one of the given
// roles. Must run after JWTAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString("user_role")
		for _, role := range roles {
			if userRole == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, utils.NewErrorResponse(utils.ErrForbidden, utils.GenerateTraceID()))
		c.Abort()
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for key, value := range utils.SecureHeaders() {
			c.Header(key, value)
		}
		c.Next()
	}
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateTraceID()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func ValidateOrigin(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		if !utils.IsSecureOrigin(origin, allowedOrigins) {
			c.JSON(http.StatusForbidden, utils.NewErrorResponse(utils.ErrForbidden, utils.GenerateTraceID()))
			c.Abort()
			return
		}
		c.Next()
	}
}

func clientIPKey(c *gin.Context) string {
	ip := c.ClientIP()
	if idx := strings.LastIndex(ip, ":"); idx > 0 && strings.Count(ip, ":") == 1 {
		ip = ip[:idx]
	}
	return ip
}
