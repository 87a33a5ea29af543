// internal/handlers/health.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"prediagnostic-back/internal/inference"
)

// Health reports model and database readiness, in the shape consumed by
// the deployment probes.
func Health(db *gorm.DB, engine *inference.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbHealthy := false
		if sqlDB, err := db.DB(); err == nil {
			dbHealthy = sqlDB.PingContext(c.Request.Context()) == nil
		}

		modelLoaded := engine.Loaded()

		status := "healthy"
		code := http.StatusOK
		if !dbHealthy || !modelLoaded {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":       status,
			"model_loaded": modelLoaded,
			"database":     dbHealthy,
			"class_labels": engine.Labels(),
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}
