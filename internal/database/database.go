package database

import (
	"emperror.dev/errors"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mcmanager/minimanager/internal/models"
)

// Open opens the sqlite database at the given path and migrates every model.
// Pass ":memory:" for a throwaway database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "database: could not open database file")
	}
	if err := db.AutoMigrate(&models.Activity{}); err != nil {
		return nil, errors.WithStack(err)
	}
	return db, nil
}
