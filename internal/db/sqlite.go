package db

import (
	"github.com/chatforge/botvault/internal/db/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	// Warn-level SQL logging only: Info mode would echo statement values,
	// including token material, into the log.
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one pooled connection keeps concurrent
	// profile workers from tripping over SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.EndUser{},
		&models.Message{},
		&models.OAuthCredential{},
		&models.OAuthStateBinding{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
