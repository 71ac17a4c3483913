// Package swizzle implements the Shacham–Waters privately-verifiable
// homomorphic-authenticator proof of storage. Every challenge audits the
// full file through random linear combinations over a prime field, and a
// tag supports an unlimited number of challenges.
package swizzle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// State holds the two PRF keys that generate the file's authenticators
// and the chunk count. Because the keys are enough to forge proofs, the
// state is encrypted and signed before it is handed to the prover for
// storage.
type State struct {
	FKey      []byte
	AlphaKey  []byte
	Chunks    int64
	Encrypted bool
	IV        []byte
	HMAC      []byte
}

// hmacSum computes the signature over the canonical preimage:
// iv || ascii(chunks) || f_key || alpha_key || ascii(encrypted).
func (s *State) hmacSum(key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(s.IV)
	h.Write([]byte(strconv.FormatInt(s.Chunks, 10)))
	h.Write(s.FKey)
	h.Write(s.AlphaKey)
	h.Write([]byte(strconv.FormatBool(s.Encrypted)))
	return h.Sum(nil)
}

// Sign computes and stores the state signature without encrypting.
func (s *State) Sign(key []byte) error {
	if err := checkAESKey(key); err != nil {
		return err
	}
	s.HMAC = s.hmacSum(key)
	return nil
}

// Encrypt encrypts the PRF keys under a fresh random IV and signs the
// state. Encrypting an already-encrypted state is a no-op.
func (s *State) Encrypt(key []byte) error {
	if err := checkAESKey(key); err != nil {
		return err
	}
	if s.Encrypted {
		return nil
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return heartbeat.WrapIO(err)
	}
	return s.encrypt(key, iv)
}

// EncryptConvergent encrypts like Encrypt but derives the IV
// deterministically from the state contents, so identical states encrypt
// to identical ciphertexts (enabling deduplication at the cost of leaking
// equality of equal states).
func (s *State) EncryptConvergent(key []byte) error {
	if err := checkAESKey(key); err != nil {
		return err
	}
	if s.Encrypted {
		return nil
	}
	h := hmac.New(sha256.New, key)
	h.Write(s.FKey)
	h.Write(s.AlphaKey)
	h.Write([]byte(strconv.FormatInt(s.Chunks, 10)))
	return s.encrypt(key, h.Sum(nil)[:aes.BlockSize])
}

// encrypt runs the two key fields through one CFB stream, f_key first,
// then signs.
func (s *State) encrypt(key, iv []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", heartbeat.ErrInvalidKey, err)
	}
	stream := cipher.NewCFBEncrypter(block, iv)
	fct := make([]byte, len(s.FKey))
	stream.XORKeyStream(fct, s.FKey)
	act := make([]byte, len(s.AlphaKey))
	stream.XORKeyStream(act, s.AlphaKey)

	s.IV = iv
	s.FKey = fct
	s.AlphaKey = act
	s.Encrypted = true
	s.HMAC = s.hmacSum(key)
	return nil
}

// Decrypt verifies the state signature, then decrypts the PRF keys in
// the same stream order and re-signs the plaintext state. It returns
// ErrSignatureInvalid if any field was modified.
func (s *State) Decrypt(key []byte) error {
	if err := checkAESKey(key); err != nil {
		return err
	}
	if !hmac.Equal(s.hmacSum(key), s.HMAC) {
		return heartbeat.ErrSignatureInvalid
	}
	if !s.Encrypted {
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", heartbeat.ErrInvalidKey, err)
	}
	stream := cipher.NewCFBDecrypter(block, s.IV)
	fpt := make([]byte, len(s.FKey))
	stream.XORKeyStream(fpt, s.FKey)
	apt := make([]byte, len(s.AlphaKey))
	stream.XORKeyStream(apt, s.AlphaKey)

	s.FKey = fpt
	s.AlphaKey = apt
	s.Encrypted = false
	s.HMAC = s.hmacSum(key)
	return nil
}

// checkAESKey rejects keys AES cannot use.
func checkAESKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: state key must be 16, 24 or 32 bytes, got %d", heartbeat.ErrInvalidKey, len(key))
	}
}
