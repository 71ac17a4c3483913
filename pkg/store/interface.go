// Package store persists encoded heartbeats: for each audited file, the
// scheme that encoded it, the tag held for the prover, and the current
// challenge state. Backends mirror deployment needs: memory for testing,
// badger for local disk, redis for distributed setups.
package store

import "encoding/json"

// Scheme identifiers stored in beat records.
const (
	SchemeMerkle  = "merkle"
	SchemeSwizzle = "swizzle"
)

// BeatRecord is one persisted heartbeat. The scheme, tag and state
// payloads are the canonical JSON wire forms produced by the scheme
// codecs; the store never interprets them.
type BeatRecord struct {
	// ID is the beat identifier (a UUID).
	ID string `json:"id"`

	// Scheme names the encoding scheme: SchemeMerkle or SchemeSwizzle.
	Scheme string `json:"scheme"`

	// CreatedAt is the Unix timestamp of encoding.
	CreatedAt int64 `json:"createdAt"`

	// SchemeData is the serialized scheme, including key material when
	// the verifier owns the record.
	SchemeData json.RawMessage `json:"schemeData"`

	// Tag is the serialized file tag.
	Tag json.RawMessage `json:"tag"`

	// State is the serialized challenge state, replaced after every
	// issued challenge.
	State json.RawMessage `json:"state"`
}

// IBeatStore is the persistence contract for heartbeats. All
// implementations must be thread-safe.
type IBeatStore interface {
	// SaveBeat persists a beat record, overwriting any record with the
	// same ID.
	SaveBeat(record *BeatRecord) error

	// LoadBeat retrieves a beat by ID. Returns nil if the beat doesn't
	// exist, error only on storage failure.
	LoadBeat(id string) (*BeatRecord, error)

	// ListBeats returns all persisted beats sorted by ID.
	// Returns empty slice if no beats exist, error only on storage failure.
	ListBeats() ([]*BeatRecord, error)

	// DeleteBeat removes a beat by ID. Idempotent - returns nil if the
	// beat doesn't exist.
	DeleteBeat(id string) error

	// UpdateState replaces the stored challenge state of a beat. This is
	// the per-round write path: the verifier advances the state on every
	// challenge and the new state must be durable before the challenge
	// is sent.
	UpdateState(id string, state json.RawMessage) error

	// Close cleanly shuts down the store. Idempotent.
	// After Close(), all other operations return errors.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck() error
}
