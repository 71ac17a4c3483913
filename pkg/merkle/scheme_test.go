package merkle

import (
	"bytes"
	"crypto/rand"
	mrand "math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// randomFile returns a reader over size random bytes plus the raw bytes
func randomFile(t *testing.T, size int) (*bytes.Reader, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return bytes.NewReader(data), data
}

func newTestScheme(t *testing.T) *Scheme {
	t.Helper()
	s, err := NewScheme(nil)
	require.NoError(t, err)
	return s
}

// TestRoundtrip encodes a 1-MiB file, issues the full default challenge
// budget, proves each challenge through the public scheme copy and
// verifies every proof with the private scheme.
func TestRoundtrip(t *testing.T) {
	file, _ := randomFile(t, 1<<20)

	scheme := newTestScheme(t)
	pub := scheme.Public()

	tag, state, err := scheme.Encode(file)
	require.NoError(t, err)
	require.Equal(t, int64(heartbeat.DefaultChunkSize), tag.ChunkSize)

	for i := 0; i < heartbeat.DefaultChallengeCount; i++ {
		chal, err := scheme.GenChallenge(state)
		require.NoError(t, err)
		require.Equal(t, int64(i), chal.Index)

		proof, err := pub.Prove(file, chal, tag)
		require.NoError(t, err)

		ok, err := scheme.Verify(proof, chal, state)
		require.NoError(t, err)
		require.True(t, ok, "challenge %d should verify", i)
	}
}

// TestExhaustion checks that the challenge budget is enforced: the
// (n+1)-th call fails with ErrOutOfChallenges.
func TestExhaustion(t *testing.T) {
	file, _ := randomFile(t, 4096)

	scheme := newTestScheme(t)
	_, state, err := scheme.Encode(file)
	require.NoError(t, err)

	for i := 0; i < heartbeat.DefaultChallengeCount; i++ {
		_, err := scheme.GenChallenge(state)
		require.NoError(t, err)
	}

	_, err = scheme.GenChallenge(state)
	require.ErrorIs(t, err, heartbeat.ErrOutOfChallenges)

	// The exhausted state is still validly signed
	require.NoError(t, state.CheckSig(scheme.key))
}

// TestTamperDetection flips one random bit of a file small enough that
// every chunk covers it, and expects verification to fail while the
// state signature stays intact.
func TestTamperDetection(t *testing.T) {
	file, data := randomFile(t, 4096)

	scheme := newTestScheme(t)
	tag, state, err := scheme.Encode(file)
	require.NoError(t, err)

	// The file is smaller than the default chunk size, so the chunk is
	// the whole file and any flipped bit lands inside it.
	require.Equal(t, int64(4096), tag.ChunkSize)

	tampered := append([]byte{}, data...)
	bit := mrand.Intn(len(tampered) * 8)
	tampered[bit/8] ^= 1 << (bit % 8)

	chal, err := scheme.GenChallenge(state)
	require.NoError(t, err)

	proof, err := scheme.Public().Prove(bytes.NewReader(tampered), chal, tag)
	require.NoError(t, err)

	ok, err := scheme.Verify(proof, chal, state)
	require.NoError(t, err)
	require.False(t, ok)

	// Detection is not an error: the state remains usable
	require.NoError(t, state.CheckSig(scheme.key))
	_, err = scheme.GenChallenge(state)
	require.NoError(t, err)
}

// TestStateAuthenticity checks that mutating any field of a signed state
// invalidates the signature.
func TestStateAuthenticity(t *testing.T) {
	file, _ := randomFile(t, 4096)

	scheme := newTestScheme(t)
	_, state, err := scheme.Encode(file)
	require.NoError(t, err)

	mutations := []struct {
		name   string
		mutate func(s *State)
	}{
		{"Index", func(s *State) { s.Index++ }},
		{"Seed", func(s *State) { s.Seed[0] ^= 0xFF }},
		{"N", func(s *State) { s.N += 100 }},
		{"Root", func(s *State) { s.Root[0] ^= 0xFF }},
		{"Timestamp", func(s *State) { s.Timestamp += 1 }},
		{"HMAC", func(s *State) { s.HMAC[0] ^= 0xFF }},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			data, err := state.MarshalJSON()
			require.NoError(t, err)
			clone := &State{}
			require.NoError(t, clone.UnmarshalJSON(data))

			m.mutate(clone)
			_, err = scheme.GenChallenge(clone)
			require.ErrorIs(t, err, heartbeat.ErrSignatureInvalid)

			ok, err := scheme.Verify(&Proof{}, &Challenge{}, clone)
			require.ErrorIs(t, err, heartbeat.ErrSignatureInvalid)
			require.False(t, ok)
		})
	}
}

// TestEncodeDeterminism checks that a fixed (key, seed) pair yields an
// identical tag and root across runs.
func TestEncodeDeterminism(t *testing.T) {
	key := make([]byte, 32)
	seed := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(seed)
	require.NoError(t, err)

	_, data := randomFile(t, 65536)

	encode := func() (*Tag, *State) {
		scheme, err := NewScheme(key)
		require.NoError(t, err)
		tag, state, err := scheme.EncodeWith(bytes.NewReader(data), EncodeParams{
			N:    16,
			Seed: seed,
		})
		require.NoError(t, err)
		return tag, state
	}

	tag1, state1 := encode()
	tag2, state2 := encode()

	require.Equal(t, state1.Root, state2.Root)
	require.Equal(t, tag1.Tree.Root(), tag2.Tree.Root())

	wire1, err := tag1.MarshalJSON()
	require.NoError(t, err)
	wire2, err := tag2.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, wire1, wire2)
}

// TestCheckFraction checks chunk sizing as a fraction of the file
func TestCheckFraction(t *testing.T) {
	file, _ := randomFile(t, 100000)

	scheme, err := NewSchemeWithCheckFraction(nil, 0.1)
	require.NoError(t, err)

	tag, state, err := scheme.EncodeWith(file, EncodeParams{N: 8})
	require.NoError(t, err)
	require.Equal(t, int64(10000), tag.ChunkSize)

	chal, err := scheme.GenChallenge(state)
	require.NoError(t, err)
	proof, err := scheme.Public().Prove(file, chal, tag)
	require.NoError(t, err)
	ok, err := scheme.Verify(proof, chal, state)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestCheckFractionBounds rejects fractions outside (0, 1]
func TestCheckFractionBounds(t *testing.T) {
	_, err := NewSchemeWithCheckFraction(nil, 0)
	require.ErrorIs(t, err, heartbeat.ErrMalformedInput)
	_, err = NewSchemeWithCheckFraction(nil, 1.5)
	require.ErrorIs(t, err, heartbeat.ErrMalformedInput)
}

// TestSmallFile checks encoding when the file is smaller than the chunk
// size: the chunk shrinks to the file.
func TestSmallFile(t *testing.T) {
	file, _ := randomFile(t, 100)

	scheme := newTestScheme(t)
	tag, state, err := scheme.EncodeWith(file, EncodeParams{N: 4})
	require.NoError(t, err)
	require.Equal(t, int64(100), tag.ChunkSize)

	chal, err := scheme.GenChallenge(state)
	require.NoError(t, err)
	proof, err := scheme.Prove(file, chal, tag)
	require.NoError(t, err)
	ok, err := scheme.Verify(proof, chal, state)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestWrongChallengeIndex checks that a proof for a different ordinal is
// rejected without error
func TestWrongChallengeIndex(t *testing.T) {
	file, _ := randomFile(t, 4096)

	scheme := newTestScheme(t)
	tag, state, err := scheme.EncodeWith(file, EncodeParams{N: 8})
	require.NoError(t, err)

	chal, err := scheme.GenChallenge(state)
	require.NoError(t, err)

	proof, err := scheme.Prove(file, chal, tag)
	require.NoError(t, err)
	proof.Leaf.Index++

	ok, err := scheme.Verify(proof, chal, state)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestEncodeRejectsNegativeBudget checks parameter validation
func TestEncodeRejectsNegativeBudget(t *testing.T) {
	file, _ := randomFile(t, 128)
	scheme := newTestScheme(t)
	_, _, err := scheme.EncodeWith(file, EncodeParams{N: -1})
	require.ErrorIs(t, err, heartbeat.ErrMalformedInput)
}

// TestProveSized checks the known-file-size fast path
func TestProveSized(t *testing.T) {
	file, data := randomFile(t, 8192)

	scheme := newTestScheme(t)
	tag, state, err := scheme.EncodeWith(file, EncodeParams{N: 4, FileSize: int64(len(data))})
	require.NoError(t, err)

	chal, err := scheme.GenChallenge(state)
	require.NoError(t, err)
	proof, err := scheme.ProveSized(file, chal, tag, int64(len(data)))
	require.NoError(t, err)
	ok, err := scheme.Verify(proof, chal, state)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestFileHash checks the whole-file HMAC helper
func TestFileHash(t *testing.T) {
	_, data := randomFile(t, 200000)
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	h1, err := FileHash(bytes.NewReader(data), seed)
	require.NoError(t, err)
	h2, err := FileHash(bytes.NewReader(data), seed)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	tampered := append([]byte{}, data...)
	tampered[0] ^= 1
	h3, err := FileHash(bytes.NewReader(tampered), seed)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
