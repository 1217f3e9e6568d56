// Package gorm provides GORM-based audit persistence for medguardian.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core audit tables (SessionRecord, EventRecord)
		{
			ID: "001_audit_tables",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				if err := tx.AutoMigrate(&SessionRecord{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&EventRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("session_records", "event_records")
			},
		},
	})

	return m.Migrate()
}
