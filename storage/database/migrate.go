package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"GuardTrack/internal/model"
	"GuardTrack/pkg/logger"
)

// Migrate 运行数据库迁移，创建所有表
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.Shift{},
		&model.ShiftBreak{},
		&model.Incident{},
		&model.GeofenceZone{},
		&model.GeofenceEvent{},
		&model.AutomationRule{},
		&model.PatrolLog{},
	)

	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
