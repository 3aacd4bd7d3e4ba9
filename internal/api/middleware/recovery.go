package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

func Recovery(log utils.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered",
			"panic", recovered,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"ip", c.ClientIP())

		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(utils.ErrInternalServer, utils.GenerateTraceID()))
		c.Abort()
	})
}
