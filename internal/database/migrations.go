package database

import (
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Promise{},
		&models.Milestone{},
		&models.Note{},
		&models.Notification{},
	)
}
