// internal/database/database.go
package database

import (
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prediagnostic-back/internal/config"
	"prediagnostic-back/internal/models"
)

// InitDB opens the process-wide database handle.
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	debugSQL := strings.ToLower(os.Getenv("DEBUG_SQL"))

	// In production, suppress SQL logs unless explicitly re-enabled via DEBUG_SQL=true.
	logLevel := logger.Info
	if environment == "production" && debugSQL != "true" {
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold: 200 * time.Millisecond,
				LogLevel:      logLevel,
			},
		),
	}

	return gorm.Open(postgres.Open(cfg.DatabaseDSN()), gormConfig)
}

// MigrateDB creates or updates the cases, diagnostic_reviews and users tables.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Case{},
		&models.DiagnosticReview{},
	)
}
