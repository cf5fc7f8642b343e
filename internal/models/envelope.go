package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	RecommendationsSchemaVersion = 1
	UsageSchemaVersion           = 1
)

// ErrUnsupportedSchema is returned when a stored envelope carries a schema
// version newer than this build understands.
var ErrUnsupportedSchema = errors.New("unsupported schema version")

// JSONEnvelope is a schema-tagged JSON document stored in a jsonb column.
type JSONEnvelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope marshals v under the given schema version.
func NewEnvelope(version int, v any) (JSONEnvelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return JSONEnvelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return JSONEnvelope{SchemaVersion: version, Payload: payload}, nil
}

// Decode unmarshals the payload into v if the version is at most maxVersion.
func (e JSONEnvelope) Decode(maxVersion int, v any) error {
	if e.SchemaVersion < 1 || e.SchemaVersion > maxVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSchema, e.SchemaVersion)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

func (e JSONEnvelope) Value() (driver.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *JSONEnvelope) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*e = JSONEnvelope{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONEnvelope", src)
	}
	return json.Unmarshal(b, e)
}

// AttendeeList stores the denormalized attendee list as JSON.
type AttendeeList []Attendee

func (a AttendeeList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *AttendeeList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("cannot scan %T into AttendeeList", src)
	}
}
