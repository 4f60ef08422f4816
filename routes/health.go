package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docqa-platform/internal/store"
	"docqa-platform/internal/vector"
)

// HandleHealth reports process liveness.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleReady reports whether the backing stores answer.
func HandleReady(meta *store.MongoStore, vectors vector.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true

		if err := meta.Ping(ctx); err != nil {
			checks["metadata_store"] = err.Error()
			healthy = false
		} else {
			checks["metadata_store"] = "ok"
		}

		if _, err := vectors.Stats(ctx); err != nil {
			checks["vector_store"] = err.Error()
			healthy = false
		} else {
			checks["vector_store"] = "ok"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"checks": checks})
	}
}

// HandleStats reports corpus-wide counters.
func HandleStats(vectors vector.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := vectors.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vector store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"vector_dimension": stats.Dimension,
			"vectors_total":    stats.TotalItems,
			"namespaces":       len(stats.Namespaces),
		})
	}
}
