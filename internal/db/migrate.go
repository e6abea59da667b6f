package db

import (
	"github.com/suPer8Hu/schoolhub/internal/analytics"
	"github.com/suPer8Hu/schoolhub/internal/chat"
	"github.com/suPer8Hu/schoolhub/internal/models"
	"gorm.io/gorm"
)

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Course{},
		&chat.Session{},
		&chat.Message{},
		&chat.InteractionRecord{},
		&analytics.CacheEntry{},
		&analytics.Job{},
	)
}
