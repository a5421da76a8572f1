package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jaemin-s/eventsync/internal/models"
	"github.com/jaemin-s/eventsync/pkg/events"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Event{},
		&models.CacheEntry{},
	)
}

var sampleEvents = []models.Event{
	{Title: "Quarterly planning", Status: string(events.StatusPublished), OrganizerID: "org-ops"},
	{Title: "Onboarding workshop", Status: string(events.StatusDraft), OrganizerID: "org-people"},
	{Title: "Retired meetup", Status: string(events.StatusArchived), OrganizerID: "org-community"},
}

// SeedData inserts the sample events when the events table is empty.
func SeedData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Event{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, sample := range sampleEvents {
			event := sample
			event.Metadata = datatypes.NewJSONType(models.EventMetadata{Version: 1, LastModifiedBy: "seed"})
			if err := tx.Create(&event).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
