package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nautilus-server/internal/attestation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrRecordNotFound = errors.New("attestation record not found")

const MaxListLimit = 100

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func RecordAttestation[T attestation.Payload](ctx context.Context, ledger *Ledger, computation string, signer attestation.Signer, signed attestation.Signed[T]) (AttestationRecord, error) {
	envelope, err := json.Marshal(signed)
	if err != nil {
		return AttestationRecord{}, fmt.Errorf("error serializing attestation: %w", err)
	}

	record := AttestationRecord{
		Id:           uuid.New(),
		Computation:  computation,
		Intent:       uint8(signed.Response.Intent),
		TimestampMs:  int64(signed.Response.TimestampMs),
		Scheme:       signer.Scheme(),
		PublicKey:    attestation.HexBytes(signer.PublicKey()).String(),
		Signature:    signed.Signature.String(),
		Envelope:     string(envelope),
		CreationTime: time.Now().UTC(),
	}

	if err := ledger.db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error saving attestation record", "error", err)
		return AttestationRecord{}, fmt.Errorf("error saving attestation record: %w", err)
	}

	return record, nil
}

func (l *Ledger) List(ctx context.Context, limit, offset int) ([]AttestationRecord, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var records []AttestationRecord
	if err := l.db.WithContext(ctx).Order("creation_time DESC").Limit(limit).Offset(offset).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error listing attestation records: %w", err)
	}
	return records, nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (AttestationRecord, error) {
	var record AttestationRecord
	if err := l.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AttestationRecord{}, ErrRecordNotFound
		}
		return AttestationRecord{}, fmt.Errorf("error getting attestation record %s: %w", id, err)
	}
	return record, nil
}
