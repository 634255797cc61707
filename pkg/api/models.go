package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"

	"github.com/google/uuid"
)

var ErrMissingField = errors.New("missing required field")

type ProcessDataRequest[T any] struct {
	Payload T `json:"payload"`
}

// UnmarshalJSON requires payload to be present and not null.
func (r *ProcessDataRequest[T]) UnmarshalJSON(data []byte) error {
	var raw struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return fmt.Errorf("%w 'payload'", ErrMissingField)
	}
	return json.Unmarshal(raw.Payload, &r.Payload)
}

type MLRequest struct {
	DataPath string `json:"data_path"`

	// Computation selects a registered computation, the server default is
	// used when empty.
	Computation string `json:"computation,omitempty"`
}

// UnmarshalJSON requires data_path to be present and not null. An empty
// string is a valid argument.
func (r *MLRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		DataPath    *string `json:"data_path"`
		Computation string  `json:"computation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.DataPath == nil {
		return fmt.Errorf("%w 'data_path'", ErrMissingField)
	}
	*r = MLRequest{DataPath: *raw.DataPath, Computation: raw.Computation}
	return nil
}

type MLResponse = compute.Result

type ProcessedDataResponse = attestation.Signed[MLResponse]

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthCheckResponse struct {
	PublicKey    attestation.HexBytes `json:"pk"`
	Scheme       string               `json:"scheme"`
	Intent       string               `json:"intent"`
	Computations []string             `json:"computations"`
}

type ListAttestationsParams struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type Attestation struct {
	Id           uuid.UUID            `json:"id"`
	Computation  string               `json:"computation"`
	Scheme       string               `json:"scheme"`
	PublicKey    attestation.HexBytes `json:"pk"`
	CreationTime time.Time            `json:"creation_time"`

	Signed json.RawMessage `json:"signed"`
}
