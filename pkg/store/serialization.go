package store

import (
	"encoding/json"
	"fmt"
)

// MarshalBeatRecord serializes a BeatRecord to JSON bytes.
func MarshalBeatRecord(record *BeatRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil BeatRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal BeatRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalBeatRecord deserializes a BeatRecord from JSON bytes.
func UnmarshalBeatRecord(data []byte) (*BeatRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record BeatRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to BeatRecord: %w", err)
	}

	return &record, nil
}

// ValidateRecord checks the fields every backend requires before a write.
func ValidateRecord(record *BeatRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil BeatRecord")
	}
	if record.ID == "" {
		return fmt.Errorf("beat record has no ID")
	}
	switch record.Scheme {
	case SchemeMerkle, SchemeSwizzle:
	default:
		return fmt.Errorf("unknown scheme %q", record.Scheme)
	}
	return nil
}
