package migration_0

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttestationRecord struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Computation string `gorm:"size:64;not null"`
	Intent      uint8  `gorm:"not null"`
	TimestampMs int64  `gorm:"not null"`

	PublicKey string `gorm:"not null"`
	Signature string `gorm:"not null"`
	Envelope  string `gorm:"not null"`

	CreationTime time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&AttestationRecord{}); err != nil {
		return fmt.Errorf("error creating attestation_records table: %w", err)
	}
	return nil
}
