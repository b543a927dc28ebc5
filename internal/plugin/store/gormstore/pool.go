package gormstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/monitoring"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormConfig returns the gorm settings shared by the SQL plugins.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(log.Default(), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// ConfigurePool sizes the connection pool and reports its usage until ctx is done.
func ConfigurePool(ctx context.Context, sqlDB *sql.DB, maxOpen, maxIdle int) {
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	if monitoring.DBPoolMaxConnections != nil {
		monitoring.DBPoolMaxConnections.Set(float64(maxOpen))
	}

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if monitoring.DBPoolOpenConnections != nil {
					monitoring.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
				}
			}
		}
	}()
}
