package swizzle

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
	"github.com/Layr-Labs/heartbeat-go/pkg/prf"
)

// Challenge requests a random linear combination over the file. VMax is
// the coefficient bound (the field prime); Key seeds the two challenge
// PRFs (chunk selection and coefficients).
type Challenge struct {
	Chunks int64
	VMax   *big.Int
	Key    []byte
}

// Tag is the ordered sequence of chunk authenticators stored on the
// prover.
type Tag struct {
	Sigma []*big.Int
}

// Proof is the prover's response: one combined value per sector plus the
// combined authenticator.
type Proof struct {
	Mu    []*big.Int
	Sigma *big.Int
}

// Options carries the scheme parameters. Zero values select the
// defaults; a nil Prime is generated freshly with PrimeBits bits.
type Options struct {
	// Sectors is the number of sectors per chunk. More sectors shrink
	// the tag at the cost of a larger proof.
	Sectors int

	// Prime defines the field. When nil a probable prime of PrimeBits
	// bits is generated.
	Prime *big.Int

	// PrimeBits is the bit length used when generating a prime.
	PrimeBits int

	// Convergent selects deterministic state-encryption IVs, enabling
	// deduplication of identical states.
	Convergent bool
}

// Scheme is the Shacham–Waters private heartbeat. The verifier holds the
// key protecting the state; the prover works from the key-stripped copy
// returned by Public, which is sufficient to call Prove only.
type Scheme struct {
	key        []byte
	prime      *big.Int
	sectors    int
	sectorSize int
	convergent bool
}

var _ heartbeat.Scheme[*Tag, *State, *Challenge, *Proof] = (*Scheme)(nil)

// NewScheme creates a swizzle scheme with default parameters (10 sectors,
// a fresh 1024-bit prime). A nil key draws a fresh random one.
func NewScheme(key []byte) (*Scheme, error) {
	return NewSchemeWithOptions(key, Options{})
}

// NewSchemeWithOptions creates a swizzle scheme with explicit parameters.
func NewSchemeWithOptions(key []byte, opts Options) (*Scheme, error) {
	if key == nil {
		key = make([]byte, heartbeat.DefaultKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, heartbeat.WrapIO(err)
		}
	}
	sectors := opts.Sectors
	if sectors == 0 {
		sectors = heartbeat.DefaultSectors
	}
	if sectors < 0 {
		return nil, heartbeat.Malformed("sectors must be positive, got %d", sectors)
	}
	prime := opts.Prime
	if prime == nil {
		bits := opts.PrimeBits
		if bits == 0 {
			bits = heartbeat.DefaultPrimeBits
		}
		var err error
		prime, err = rand.Prime(rand.Reader, bits)
		if err != nil {
			return nil, heartbeat.WrapIO(err)
		}
	}
	if prime.BitLen() < 8 {
		return nil, heartbeat.Malformed("prime must be at least 8 bits, got %d", prime.BitLen())
	}
	return &Scheme{
		key:        key,
		prime:      prime,
		sectors:    sectors,
		sectorSize: prime.BitLen() / 8,
		convergent: opts.Convergent,
	}, nil
}

// Public returns a key-stripped copy sufficient for Prove only.
func (s *Scheme) Public() *Scheme {
	return &Scheme{
		prime:      s.prime,
		sectors:    s.sectors,
		sectorSize: s.sectorSize,
		convergent: s.convergent,
	}
}

// Prime returns the field prime.
func (s *Scheme) Prime() *big.Int {
	return s.prime
}

// Sectors returns the sector count per chunk.
func (s *Scheme) Sectors() int {
	return s.sectors
}

// Zeroize overwrites the scheme key in place.
func (s *Scheme) Zeroize() {
	for i := range s.key {
		s.key[i] = 0
	}
}

// Encode computes the authenticator sequence for the file. Each chunk of
// sectors·σ bytes gets the authenticator
//
//	σ_i = f(i) + Σ_j alpha(j)·m_{i,j}  (mod p)
//
// under two freshly drawn PRF keys, which are then sealed into the
// encrypted, signed state. On any error the caller observes no partial
// tag or state.
func (s *Scheme) Encode(file io.ReadSeeker) (*Tag, *State, error) {
	fKey := make([]byte, heartbeat.DefaultKeySize)
	if _, err := rand.Read(fKey); err != nil {
		return nil, nil, heartbeat.WrapIO(err)
	}
	alphaKey := make([]byte, heartbeat.DefaultKeySize)
	if _, err := rand.Read(alphaKey); err != nil {
		return nil, nil, heartbeat.WrapIO(err)
	}

	f, err := prf.New(fKey, s.prime)
	if err != nil {
		return nil, nil, err
	}
	alpha, err := prf.New(alphaKey, s.prime)
	if err != nil {
		return nil, nil, err
	}

	tag := &Tag{}
	buf := make([]byte, s.sectorSize)
	done := false
	chunkID := int64(0)

	for !done {
		sigma, err := f.Eval(chunkID)
		if err != nil {
			return nil, nil, err
		}
		for j := 0; j < s.sectors; j++ {
			read, err := readUpTo(file, buf)
			if err != nil {
				return nil, nil, heartbeat.WrapIO(err)
			}
			if read > 0 {
				coeff, err := alpha.Eval(int64(j))
				if err != nil {
					return nil, nil, err
				}
				term := new(big.Int).Mul(coeff, heartbeat.BytesToInt(buf[:read]))
				sigma.Add(sigma, term)
				sigma.Mod(sigma, s.prime)
			}
			if read != len(buf) {
				done = true
				break
			}
		}
		sigma.Mod(sigma, s.prime)
		tag.Sigma = append(tag.Sigma, sigma)
		chunkID++
	}

	state := &State{FKey: fKey, AlphaKey: alphaKey, Chunks: chunkID}
	if s.convergent {
		err = state.EncryptConvergent(s.key)
	} else {
		err = state.Encrypt(s.key)
	}
	if err != nil {
		return nil, nil, err
	}

	return tag, state, nil
}

// GenChallenge verifies and decrypts the state, then draws a fresh
// challenge key. Every challenge audits state.Chunks randomly selected
// chunks with coefficients below the prime.
func (s *Scheme) GenChallenge(state *State) (*Challenge, error) {
	if err := state.Decrypt(s.key); err != nil {
		return nil, err
	}
	key := make([]byte, heartbeat.DefaultKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, heartbeat.WrapIO(err)
	}
	return &Challenge{Chunks: state.Chunks, VMax: s.prime, Key: key}, nil
}

// Prove computes the random linear combination named by the challenge:
// mu[j] = Σ_i v(i)·m_{index(i),j} and sigma = Σ_i v(i)·σ_{index(i)},
// all mod p. It needs no key material.
func (s *Scheme) Prove(file io.ReadSeeker, chal *Challenge, tag *Tag) (*Proof, error) {
	if len(tag.Sigma) == 0 {
		return nil, heartbeat.Malformed("tag has no authenticators")
	}
	index, err := prf.NewInt(chal.Key, int64(len(tag.Sigma)))
	if err != nil {
		return nil, err
	}
	v, err := prf.New(chal.Key, chal.VMax)
	if err != nil {
		return nil, err
	}

	proof := &Proof{
		Mu:    make([]*big.Int, s.sectors),
		Sigma: new(big.Int),
	}
	for j := range proof.Mu {
		proof.Mu[j] = new(big.Int)
	}

	chunkSize := int64(s.sectors) * int64(s.sectorSize)
	buf := make([]byte, s.sectorSize)

	for i := int64(0); i < chal.Chunks; i++ {
		pos, err := index.EvalInt(i)
		if err != nil {
			return nil, err
		}
		coeff, err := v.Eval(i)
		if err != nil {
			return nil, err
		}
		for j := 0; j < s.sectors; j++ {
			offset := pos*chunkSize + int64(j)*int64(s.sectorSize)
			if _, err := file.Seek(offset, io.SeekStart); err != nil {
				return nil, heartbeat.WrapIO(err)
			}
			read, err := readUpTo(file, buf)
			if err != nil {
				return nil, heartbeat.WrapIO(err)
			}
			if read > 0 {
				term := new(big.Int).Mul(coeff, heartbeat.BytesToInt(buf[:read]))
				proof.Mu[j].Add(proof.Mu[j], term)
				proof.Mu[j].Mod(proof.Mu[j], s.prime)
			}
			if read != len(buf) {
				break
			}
		}
	}

	for j := range proof.Mu {
		proof.Mu[j].Mod(proof.Mu[j], s.prime)
	}

	for i := int64(0); i < chal.Chunks; i++ {
		pos, err := index.EvalInt(i)
		if err != nil {
			return nil, err
		}
		coeff, err := v.Eval(i)
		if err != nil {
			return nil, err
		}
		term := new(big.Int).Mul(coeff, tag.Sigma[pos])
		proof.Sigma.Add(proof.Sigma, term)
		proof.Sigma.Mod(proof.Sigma, s.prime)
	}
	proof.Sigma.Mod(proof.Sigma, s.prime)

	return proof, nil
}

// Verify recomputes the expected combination from the state's PRF keys
// and checks the proof against it:
//
//	sigma == Σ_i v(i)·f(index(i)) + Σ_j alpha(j)·mu[j]  (mod p)
//
// A proof that does not satisfy the challenge yields (false, nil).
func (s *Scheme) Verify(proof *Proof, chal *Challenge, state *State) (bool, error) {
	if err := state.Decrypt(s.key); err != nil {
		return false, err
	}
	if len(proof.Mu) != s.sectors || proof.Sigma == nil {
		return false, nil
	}

	index, err := prf.NewInt(chal.Key, state.Chunks)
	if err != nil {
		return false, err
	}
	v, err := prf.New(chal.Key, chal.VMax)
	if err != nil {
		return false, err
	}
	f, err := prf.New(state.FKey, s.prime)
	if err != nil {
		return false, err
	}
	alpha, err := prf.New(state.AlphaKey, s.prime)
	if err != nil {
		return false, err
	}

	rhs := new(big.Int)
	for i := int64(0); i < chal.Chunks; i++ {
		pos, err := index.EvalInt(i)
		if err != nil {
			return false, err
		}
		coeff, err := v.Eval(i)
		if err != nil {
			return false, err
		}
		fval, err := f.Eval(pos)
		if err != nil {
			return false, err
		}
		rhs.Add(rhs, new(big.Int).Mul(coeff, fval))
		rhs.Mod(rhs, s.prime)
	}
	for j := 0; j < s.sectors; j++ {
		coeff, err := alpha.Eval(int64(j))
		if err != nil {
			return false, err
		}
		rhs.Add(rhs, new(big.Int).Mul(coeff, proof.Mu[j]))
		rhs.Mod(rhs, s.prime)
	}
	rhs.Mod(rhs, s.prime)

	return proof.Sigma.Cmp(rhs) == 0, nil
}

// NewTag allocates an empty tag for decoding.
func (s *Scheme) NewTag() *Tag { return &Tag{} }

// NewState allocates an empty state for decoding.
func (s *Scheme) NewState() *State { return &State{} }

// NewChallenge allocates an empty challenge for decoding.
func (s *Scheme) NewChallenge() *Challenge { return &Challenge{} }

// NewProof allocates an empty proof for decoding.
func (s *Scheme) NewProof() *Proof { return &Proof{} }

// readUpTo reads up to len(buf) bytes, returning fewer only at EOF.
func readUpTo(r io.Reader, buf []byte) (int, error) {
	read, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return read, nil
	}
	return read, err
}
