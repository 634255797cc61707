package database

import (
	"log"

	"nautilus-server/internal/database/versions/migration_0"
	"nautilus-server/internal/database/versions/migration_1"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:       "1",
			Migrate:  migration_1.Migration,
			Rollback: migration_1.Rollback,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Run by the migrator when no previous migration is recorded, so a
		// clean database goes straight to the latest schema.

		log.Println("clean database detected, running full schema initialization")

		return txn.AutoMigrate(&AttestationRecord{})
	})

	return migrator
}
