package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors        = make(map[string]*visitor)
	visitorsMu      sync.Mutex
	rateLimiterOnce sync.Once
)

func getVisitor(ip string, requestsPerWindow int, window time.Duration) *rate.Limiter {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()

	v, exists := visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(float64(requestsPerWindow)/window.Seconds()), requestsPerWindow)
		visitors[ip] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for range time.Tick(5 * time.Minute) {
		visitorsMu.Lock()
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > 10*time.Minute {
				delete(visitors, ip)
			}
		}
		visitorsMu.Unlock()
	}
}

// RateLimit applies a per-client-IP token bucket across all routes.
func RateLimit(requestsPerWindow int, window time.Duration) gin.HandlerFunc {
	rateLimiterOnce.Do(func() {
		go cleanupVisitors()
	})

	return func(c *gin.Context) {
		limiter := getVisitor(clientIPKey(c), requestsPerWindow, window)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, utils.NewErrorResponse(utils.ErrRateLimitExceeded, utils.GenerateTraceID()))
			c.Abort()
			return
		}
		c.Next()
	}
}
