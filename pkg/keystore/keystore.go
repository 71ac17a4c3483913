// Package keystore derives the per-file scheme keys from a single master
// key, so a verifier tracking many files only has to protect one secret.
package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// KeyStore holds a master key and derives per-file keys with
// HKDF-SHA256, keyed by the beat identifier. It is safe for concurrent
// use. Close zeroizes the master key; all derivations fail afterwards.
type KeyStore struct {
	mu     sync.RWMutex
	master []byte
	closed bool
}

// NewKeyStore creates a keystore around the given 32-byte master key.
// A nil key draws a fresh random one.
func NewKeyStore(master []byte) (*KeyStore, error) {
	if master == nil {
		master = make([]byte, heartbeat.DefaultKeySize)
		if _, err := rand.Read(master); err != nil {
			return nil, heartbeat.WrapIO(err)
		}
	}
	if len(master) != heartbeat.DefaultKeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d",
			heartbeat.ErrInvalidKey, heartbeat.DefaultKeySize, len(master))
	}
	return &KeyStore{master: master}, nil
}

// DeriveKey returns the 32-byte scheme key for the given beat ID. The
// derivation is deterministic, so the key can be recomputed after a
// restart from the master key alone.
func (ks *KeyStore) DeriveKey(beatID string) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.closed {
		return nil, fmt.Errorf("%w: keystore is closed", heartbeat.ErrInvalidKey)
	}

	r := hkdf.New(sha256.New, ks.master, nil, []byte(beatID))
	key := make([]byte, heartbeat.DefaultKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// Close zeroizes the master key. Idempotent.
func (ks *KeyStore) Close() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for i := range ks.master {
		ks.master[i] = 0
	}
	ks.closed = true
}
