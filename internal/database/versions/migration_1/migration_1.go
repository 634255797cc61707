package migration_1

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type AttestationRecord struct {
	Scheme       string    `gorm:"size:20;not null;default:'ed25519'"`
	CreationTime time.Time `gorm:"index"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&AttestationRecord{}, "Scheme"); err != nil {
		return fmt.Errorf("error adding scheme column: %w", err)
	}
	if err := db.Migrator().CreateIndex(&AttestationRecord{}, "CreationTime"); err != nil {
		return fmt.Errorf("error creating creation_time index: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropIndex(&AttestationRecord{}, "CreationTime"); err != nil {
		return fmt.Errorf("error dropping creation_time index: %w", err)
	}
	if err := db.Migrator().DropColumn(&AttestationRecord{}, "Scheme"); err != nil {
		return fmt.Errorf("error dropping scheme column: %w", err)
	}
	return nil
}
