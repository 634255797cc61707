package attestation

import (
	"encoding/hex"
	"fmt"
)

// IntentScope tags what kind of statement a signature covers, so a
// signature issued for one kind of message cannot be replayed as another.
type IntentScope uint8

const (
	ProcessData IntentScope = 0
)

func (s IntentScope) String() string {
	switch s {
	case ProcessData:
		return "process_data"
	default:
		return fmt.Sprintf("intent(%d)", uint8(s))
	}
}

type IntentMessage[T Payload] struct {
	Intent      IntentScope `json:"intent"`
	TimestampMs uint64      `json:"timestamp_ms"`
	Data        T           `json:"data"`
}

func (m IntentMessage[T]) MarshalBCS(e *Encoder) {
	e.WriteU8(uint8(m.Intent))
	e.WriteU64(m.TimestampMs)
	m.Data.MarshalBCS(e)
}

// Canonical returns the exact bytes that are signed for this message.
func (m IntentMessage[T]) Canonical() []byte {
	var e Encoder
	m.MarshalBCS(&e)
	return e.Bytes()
}

type Signed[T Payload] struct {
	Response  IntentMessage[T] `json:"response"`
	Signature HexBytes         `json:"signature"`
}

// HexBytes is encoded as a lowercase hex string in JSON.
type HexBytes []byte

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

func (h *HexBytes) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid hex value: %w", err)
	}
	*h = decoded
	return nil
}

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}
