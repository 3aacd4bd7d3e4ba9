package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

var startTime = time.Now()

type HealthHandler struct {
	db     *storage.Database
	logger utils.Logger
}

func NewHealthHandler(db *storage.Database, logger utils.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	})
}

func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "database unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *HealthHandler) Metrics(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":  int64(time.Since(startTime).Seconds()),
		"goroutines":      runtime.NumGoroutine(),
		"heap_alloc":      m.HeapAlloc,
		"heap_objects":    m.HeapObjects,
		"gc_cycles":       m.NumGC,
		"db_open_conns":   h.db.Stats().OpenConnections,
		"db_in_use_conns": h.db.Stats().InUse,
	})
}
