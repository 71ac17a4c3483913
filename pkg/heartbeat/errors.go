package heartbeat

import (
	"errors"
	"fmt"
)

// Error taxonomy. Verification mismatch is not an error; only protocol
// misuse, corruption or I/O failures surface through these.
var (
	// ErrSignatureInvalid indicates a state HMAC mismatch.
	ErrSignatureInvalid = errors.New("signature invalid on state")

	// ErrOutOfChallenges indicates an exhausted Merkle challenge budget.
	ErrOutOfChallenges = errors.New("out of challenges")

	// ErrInvalidKey indicates a wrong-size key passed to encrypt/decrypt.
	ErrInvalidKey = errors.New("invalid key")

	// ErrMalformedInput indicates structurally invalid serialized data.
	ErrMalformedInput = errors.New("malformed input")

	// ErrIO wraps a failure from the caller-supplied file stream.
	ErrIO = errors.New("file stream error")
)

// wrapIO annotates a stream failure with the ErrIO sentinel.
func wrapIO(err error) error {
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// WrapIO annotates a failure from the caller-supplied file stream so it
// matches errors.Is(err, ErrIO).
func WrapIO(err error) error {
	return wrapIO(err)
}

// Malformed builds an ErrMalformedInput with detail about the offending
// structure.
func Malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
