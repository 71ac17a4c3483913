// Package prf implements the keyed pseudo-random function used to derive
// field elements and chunk positions. The input index is hashed, padded to
// the range's byte length, encrypted with AES-CFB, masked to the range's
// bit length, and rejection-sampled until the result falls inside the
// range. Rejection sampling gives unbiased output; the mask shortens the
// expected number of iterations.
package prf

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strconv"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// KeyedPRF maps an integer index to a uniform integer in [0, range).
// It is deterministic in (key, range, index). Instances are immutable and
// safe for concurrent use; each Eval call opens a fresh cipher state.
type KeyedPRF struct {
	key     []byte
	rng     *big.Int
	mask    *big.Int
	byteLen int
}

// New creates a KeyedPRF over [0, rng) keyed with key. The key must be a
// valid AES key size (the schemes use 32 bytes).
func New(key []byte, rng *big.Int) (*KeyedPRF, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: prf key must be 16, 24 or 32 bytes, got %d", heartbeat.ErrInvalidKey, len(key))
	}
	if rng == nil || rng.Sign() <= 0 {
		return nil, heartbeat.Malformed("prf range must be positive")
	}
	bits := rng.BitLen()
	mask := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	mask.Sub(mask, big.NewInt(1))
	return &KeyedPRF{
		key:     append([]byte(nil), key...),
		rng:     new(big.Int).Set(rng),
		mask:    mask,
		byteLen: (bits + 7) / 8,
	}, nil
}

// NewInt is a convenience constructor for small ranges.
func NewInt(key []byte, rng int64) (*KeyedPRF, error) {
	return New(key, big.NewInt(rng))
}

// Eval returns the PRF output for index x.
//
// The cipher stream is opened once per call with a zero IV. This is safe
// only because the plaintext blocks are SHA-256 digests of unique inputs
// and nothing else is ever encrypted under that stream; successive retry
// blocks continue the same stream.
func (p *KeyedPRF) Eval(x int64) (*big.Int, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", heartbeat.ErrInvalidKey, err)
	}
	iv := make([]byte, aes.BlockSize)
	stream := cipher.NewCFBEncrypter(block, iv)

	buf := make([]byte, p.byteLen)
	for t := int64(0); ; t++ {
		digest := sha256.Sum256([]byte(strconv.FormatInt(x+t, 10)))
		pad(buf, digest[:])
		stream.XORKeyStream(buf, buf)

		n := new(big.Int).SetBytes(buf)
		n.And(n, p.mask)
		if n.Cmp(p.rng) < 0 {
			return n, nil
		}
	}
}

// EvalInt returns the PRF output for index x as an int64. The range must
// fit in an int64.
func (p *KeyedPRF) EvalInt(x int64) (int64, error) {
	n, err := p.Eval(x)
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// pad writes data into dst, truncating if data is longer and
// right-padding with zero bytes if shorter.
func pad(dst, data []byte) {
	n := copy(dst, data)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
