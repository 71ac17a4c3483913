package merkle

import (
	"crypto/hmac"
	"crypto/sha256"
	"strconv"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// State is the verifier-side record for one encoded file: the next
// challenge ordinal, the current seed, the challenge budget and the
// merkle root. It is mutated by each issued challenge, so it can be
// stored on the prover between rounds; the HMAC signature makes any
// modification outside GenChallenge detectable. The timestamp lets the
// verifier reject a stale state replayed by the prover (the acceptable
// age is a deployment choice).
type State struct {
	Index     int64
	Seed      []byte
	N         int64
	Root      []byte
	HMAC      []byte
	Timestamp float64
}

// hmacSum computes the signature over the canonical preimage:
// ascii(index) || seed || ascii(n) || root || ascii(timestamp).
func (s *State) hmacSum(key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(strconv.FormatInt(s.Index, 10)))
	h.Write(s.Seed)
	h.Write([]byte(strconv.FormatInt(s.N, 10)))
	h.Write(s.Root)
	h.Write([]byte(strconv.FormatFloat(s.Timestamp, 'g', -1, 64)))
	return h.Sum(nil)
}

// Sign computes and stores the state signature. Encode returns a signed
// state, so explicit use is normally unnecessary.
func (s *State) Sign(key []byte) {
	s.HMAC = s.hmacSum(key)
}

// CheckSig verifies the state signature, returning ErrSignatureInvalid on
// mismatch.
func (s *State) CheckSig(key []byte) error {
	if !hmac.Equal(s.hmacSum(key), s.HMAC) {
		return heartbeat.ErrSignatureInvalid
	}
	return nil
}
