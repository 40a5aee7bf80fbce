package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/chunks"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/engagement"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/notifications"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/users"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	models := []interface{}{
		&users.User{},
		&users.Follow{},
		&chunks.Chunk{},
		&chunks.ChunkTag{},
		&engagement.Like{},
		&engagement.Comment{},
		&notifications.Notification{},
		&migrationRecord{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
