package merkle

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"time"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
	"github.com/Layr-Labs/heartbeat-go/pkg/prf"
)

// Challenge asks the prover for the seeded HMAC of one chunk and the
// branch of the corresponding leaf.
type Challenge struct {
	Seed  []byte
	Index int64
}

// Tag is the prover-side file tag: the leaf-stripped tree plus the chunk
// size used when encoding.
type Tag struct {
	Tree      *Tree
	ChunkSize int64
}

// Proof is the prover's answer: the recomputed leaf and the branch
// connecting it to the root.
type Proof struct {
	Leaf   *Leaf
	Branch *Branch
}

// EncodeParams carries the optional knobs of Encode. Zero values select
// the defaults: a random seed, the scheme's configured chunk size, and a
// file size probed from the stream.
type EncodeParams struct {
	// N is the challenge budget. Zero selects DefaultChallengeCount.
	N int64

	// Seed is the root seed for the challenge batch.
	Seed []byte

	// ChunkSize overrides the chunk size in bytes.
	ChunkSize int64

	// FileSize skips the seek-to-end probe when the caller already knows
	// the stream size.
	FileSize int64
}

// Scheme is the merkle-tree heartbeat. The verifier holds the key used
// for seed generation and state signing; the prover works from the
// key-stripped copy returned by Public.
type Scheme struct {
	key           []byte
	checkFraction float64
}

var _ heartbeat.Scheme[*Tag, *State, *Challenge, *Proof] = (*Scheme)(nil)

// NewScheme creates a merkle scheme with the given 32-byte key. A nil key
// draws a fresh random one.
func NewScheme(key []byte) (*Scheme, error) {
	if key == nil {
		key = make([]byte, heartbeat.DefaultKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, heartbeat.WrapIO(err)
		}
	}
	return &Scheme{key: key}, nil
}

// NewSchemeWithCheckFraction creates a merkle scheme whose chunk size is
// the given fraction of the file size rather than a fixed byte count.
func NewSchemeWithCheckFraction(key []byte, fraction float64) (*Scheme, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, heartbeat.Malformed("check fraction must be in (0, 1], got %v", fraction)
	}
	s, err := NewScheme(key)
	if err != nil {
		return nil, err
	}
	s.checkFraction = fraction
	return s, nil
}

// Public returns a key-stripped copy sufficient for Prove only.
func (s *Scheme) Public() *Scheme {
	return &Scheme{checkFraction: s.checkFraction}
}

// CheckFraction returns the configured check fraction, or zero when the
// scheme uses a fixed chunk size.
func (s *Scheme) CheckFraction() float64 {
	return s.checkFraction
}

// Zeroize overwrites the scheme key in place.
func (s *Scheme) Zeroize() {
	for i := range s.key {
		s.key[i] = 0
	}
}

// Encode builds the tag and initial state for the file with the default
// challenge budget.
func (s *Scheme) Encode(file io.ReadSeeker) (*Tag, *State, error) {
	return s.EncodeWith(file, EncodeParams{})
}

// EncodeWith builds a merkle tree whose leaves are seeded chunk HMACs,
// one per challenge, each seed derived from the previous by HMAC under
// the scheme key. The returned tag is the leaf-stripped tree; the
// returned state is signed. On any error the caller observes no partial
// tag or state.
func (s *Scheme) EncodeWith(file io.ReadSeeker, params EncodeParams) (*Tag, *State, error) {
	n := params.N
	if n == 0 {
		n = heartbeat.DefaultChallengeCount
	}
	if n < 0 {
		return nil, nil, heartbeat.Malformed("challenge count must be positive, got %d", n)
	}

	seed := params.Seed
	if seed == nil {
		seed = make([]byte, heartbeat.DefaultKeySize)
		if _, err := rand.Read(seed); err != nil {
			return nil, nil, heartbeat.WrapIO(err)
		}
	}

	filesz := params.FileSize
	if filesz == 0 {
		var err error
		filesz, err = heartbeat.FileSize(file)
		if err != nil {
			return nil, nil, err
		}
	}

	chunksz := params.ChunkSize
	if chunksz == 0 {
		if s.checkFraction > 0 {
			chunksz = int64(s.checkFraction * float64(filesz))
		} else {
			chunksz = heartbeat.DefaultChunkSize
		}
	}
	if filesz < chunksz {
		chunksz = filesz
	}

	tree := NewTree()
	state := &State{
		Index:     0,
		Seed:      seed,
		N:         n,
		Timestamp: now(),
	}

	leafSeed := nextSeed(s.key, state.Seed)
	for i := int64(0); i < n; i++ {
		blob, err := chunkHMAC(file, leafSeed, filesz, chunksz)
		if err != nil {
			return nil, nil, err
		}
		tree.AddLeaf(blob)
		leafSeed = nextSeed(s.key, leafSeed)
	}

	tree.Build()
	state.Root = tree.Root()
	tree.StripLeaves()
	state.Sign(s.key)

	return &Tag{Tree: tree, ChunkSize: chunksz}, state, nil
}

// GenChallenge verifies the state signature and issues the next
// challenge, advancing the seed, ordinal and timestamp and re-signing.
// It fails with ErrOutOfChallenges once the budget is exhausted.
func (s *Scheme) GenChallenge(state *State) (*Challenge, error) {
	if err := state.CheckSig(s.key); err != nil {
		return nil, err
	}
	if state.Index >= state.N {
		return nil, heartbeat.ErrOutOfChallenges
	}
	state.Seed = nextSeed(s.key, state.Seed)
	chal := &Challenge{Seed: state.Seed, Index: state.Index}
	state.Index++
	state.Timestamp = now()
	state.Sign(s.key)
	return chal, nil
}

// Prove recomputes the seeded chunk HMAC named by the challenge and pairs
// it with the stored branch. It needs no key material.
func (s *Scheme) Prove(file io.ReadSeeker, chal *Challenge, tag *Tag) (*Proof, error) {
	return s.ProveSized(file, chal, tag, 0)
}

// ProveSized is Prove with a caller-supplied file size, skipping the
// seek-to-end probe.
func (s *Scheme) ProveSized(file io.ReadSeeker, chal *Challenge, tag *Tag, filesz int64) (*Proof, error) {
	if filesz == 0 {
		var err error
		filesz, err = heartbeat.FileSize(file)
		if err != nil {
			return nil, err
		}
	}
	blob, err := chunkHMAC(file, chal.Seed, filesz, tag.ChunkSize)
	if err != nil {
		return nil, err
	}
	return &Proof{
		Leaf:   &Leaf{Index: chal.Index, Blob: blob},
		Branch: tag.Tree.GetBranch(chal.Index),
	}, nil
}

// Verify checks the proof against the challenge and the signed state.
// A proof that does not satisfy the challenge yields (false, nil).
func (s *Scheme) Verify(proof *Proof, chal *Challenge, state *State) (bool, error) {
	if err := state.CheckSig(s.key); err != nil {
		return false, err
	}
	if proof.Leaf == nil || proof.Leaf.Index != chal.Index {
		return false, nil
	}
	return VerifyBranch(proof.Leaf, proof.Branch, state.Root), nil
}

// NewTag allocates an empty tag for decoding.
func (s *Scheme) NewTag() *Tag { return &Tag{} }

// NewState allocates an empty state for decoding.
func (s *Scheme) NewState() *State { return &State{} }

// NewChallenge allocates an empty challenge for decoding.
func (s *Scheme) NewChallenge() *Challenge { return &Challenge{} }

// NewProof allocates an empty proof for decoding.
func (s *Scheme) NewProof() *Proof { return &Proof{} }

// nextSeed derives the next seed in the sequence: HMAC-SHA256(key, seed).
func nextSeed(key, seed []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(seed)
	return h.Sum(nil)
}

// chunkHMAC picks one chunk of the file deterministically from the seed
// and returns HMAC-SHA256(seed, chunk). The seed acts both as position
// selector and HMAC key, binding content and position together.
func chunkHMAC(file io.ReadSeeker, seed []byte, filesz, chunksz int64) ([]byte, error) {
	if filesz < chunksz {
		chunksz = filesz
	}
	p, err := prf.NewInt(seed, filesz-chunksz+1)
	if err != nil {
		return nil, err
	}
	offset, err := p.EvalInt(0)
	if err != nil {
		return nil, err
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, heartbeat.WrapIO(err)
	}

	h := hmac.New(sha256.New, seed)
	buf := make([]byte, heartbeat.DefaultBufferSize)
	remaining := chunksz
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := io.ReadFull(file, buf[:n])
		if err != nil {
			return nil, heartbeat.WrapIO(err)
		}
		h.Write(buf[:read])
		remaining -= int64(read)
	}
	return h.Sum(nil), nil
}

// FileHash computes the seeded HMAC of the entire stream, reading it in
// DefaultBufferSize buffers. It is the whole-file analogue of the chunk
// HMAC, usable for a full spot check.
func FileHash(file io.Reader, seed []byte) ([]byte, error) {
	h := hmac.New(sha256.New, seed)
	if _, err := io.CopyBuffer(h, file, make([]byte, heartbeat.DefaultBufferSize)); err != nil {
		return nil, heartbeat.WrapIO(err)
	}
	return h.Sum(nil), nil
}

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
