package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa-platform/utils"
)

// RequestSizeLimit rejects requests whose declared body size exceeds maxSize.
// The validator still enforces per-file limits while streaming.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size":    maxSize,
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			c.Abort()
			return
		}
		c.Next()
	}
}
