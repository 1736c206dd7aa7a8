package database

import (
	"fmt"

	"github.com/emberworks/ember-backend/internal/chat"
	"github.com/emberworks/ember-backend/internal/push"
	"github.com/emberworks/ember-backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection, performs schema migrations, and
// resets durable presence. Presence is single-process authority: after a
// restart nobody can still be connected, so any row left online belongs to a
// previous process and is cleared before the server accepts connections.
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

	if err := db.AutoMigrate(
		&chat.Match{},
		&chat.Message{},
		&chat.ReadReceipt{},
		&chat.PresenceRecord{},
		&push.DeviceEndpoint{},
		&users.Identity{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if err := resetPresence(db); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func resetPresence(db *gorm.DB) error {
	return db.Model(&chat.PresenceRecord{}).
		Where("online = ?", true).
		Update("online", false).Error
}
