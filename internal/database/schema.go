package database

import (
	"time"

	"github.com/google/uuid"
)

// AttestationRecord is an issued signed attestation. Request arguments are
// never stored; Envelope holds the exact JSON returned to the caller.
type AttestationRecord struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Computation string `gorm:"size:64;not null"`
	Intent      uint8  `gorm:"not null"`
	TimestampMs int64  `gorm:"not null"`

	Scheme    string `gorm:"size:20;not null"`
	PublicKey string `gorm:"not null"`
	Signature string `gorm:"not null"`
	Envelope  string `gorm:"not null"`

	CreationTime time.Time `gorm:"index"`
}
