package compute

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"nautilus-server/internal/attestation"

	"github.com/xeipuuv/gojsonschema"
)

const ResultSchemaVersion = "ml-result/v1"

// Both metrics are required, unknown fields are rejected.
const resultSchemaV1 = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"$id": "ml-result/v1",
	"type": "object",
	"required": ["accuracy", "loss"],
	"additionalProperties": false,
	"properties": {
		"accuracy": {"type": "integer", "minimum": 0},
		"loss": {"type": "integer", "minimum": 0}
	}
}`

var resultSchema = mustCompileSchema(resultSchemaV1)

func mustCompileSchema(schema string) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid result schema: %v", err))
	}
	return compiled
}

type Result struct {
	Accuracy uint64 `json:"accuracy"`
	Loss     uint64 `json:"loss"`
}

func (r Result) MarshalBCS(e *attestation.Encoder) {
	e.WriteU64(r.Accuracy)
	e.WriteU64(r.Loss)
}

func ParseResult(outcome Outcome) (Result, error) {
	if !outcome.Success() {
		return Result{}, &ExecutionError{ExitCode: outcome.ExitCode, Stderr: outcome.Stderr}
	}

	if !utf8.Valid(outcome.Stdout) {
		return Result{}, ErrEncoding
	}
	text := string(outcome.Stdout)

	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: empty output", ErrSchema)
	}

	validation, err := resultSchema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if !validation.Valid() {
		var b strings.Builder
		for _, e := range validation.Errors() {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(e.String())
		}
		return Result{}, fmt.Errorf("%w: %s", ErrSchema, b.String())
	}

	return decodeResult(text)
}

// rejectDuplicateKeys fails on an object naming the same field twice. The
// schema validator and encoding/json both keep the last value silently.
func rejectDuplicateKeys(text string) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("%w: result must be a json object", ErrSchema)
	}

	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
		key, _ := tok.(string)
		if seen[key] {
			return fmt.Errorf("%w: duplicate field '%s'", ErrSchema, key)
		}
		seen[key] = true

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
	}
	return nil
}

func decodeResult(text string) (Result, error) {
	if err := rejectDuplicateKeys(text); err != nil {
		return Result{}, err
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var raw struct {
		Accuracy json.Number `json:"accuracy"`
		Loss     json.Number `json:"loss"`
	}
	if err := dec.Decode(&raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("%w: unexpected data after result object", ErrSchema)
	}

	accuracy, err := parseMetric("accuracy", raw.Accuracy)
	if err != nil {
		return Result{}, err
	}
	loss, err := parseMetric("loss", raw.Loss)
	if err != nil {
		return Result{}, err
	}

	return Result{Accuracy: accuracy, Loss: loss}, nil
}

func parseMetric(field string, value json.Number) (uint64, error) {
	parsed, err := strconv.ParseUint(value.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field '%s' must be an unsigned 64-bit integer, got '%s'", ErrSchema, field, value)
	}
	return parsed, nil
}
