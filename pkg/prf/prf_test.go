package prf

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

// TestEvalDeterminism checks that output depends only on (key, range, x)
func TestEvalDeterminism(t *testing.T) {
	key := testKey(t)
	p1, err := New(key, big.NewInt(1000))
	require.NoError(t, err)
	p2, err := New(key, big.NewInt(1000))
	require.NoError(t, err)

	for x := int64(0); x < 50; x++ {
		a, err := p1.Eval(x)
		require.NoError(t, err)
		b, err := p2.Eval(x)
		require.NoError(t, err)
		require.Equal(t, 0, a.Cmp(b), "output for index %d should be deterministic", x)
	}
}

// TestEvalInRange checks the [0, range) contract across range sizes
func TestEvalInRange(t *testing.T) {
	testCases := []struct {
		name string
		rng  *big.Int
	}{
		{"Range 1", big.NewInt(1)},
		{"Range 2", big.NewInt(2)},
		{"Small range", big.NewInt(7)},
		{"Power of two", big.NewInt(4096)},
		{"Large range", new(big.Int).Lsh(big.NewInt(1), 1024)},
	}

	key := testKey(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(key, tc.rng)
			require.NoError(t, err)
			for x := int64(0); x < 20; x++ {
				n, err := p.Eval(x)
				require.NoError(t, err)
				require.True(t, n.Sign() >= 0)
				require.True(t, n.Cmp(tc.rng) < 0, "output must be below range")
			}
		})
	}
}

// TestEvalDistinctKeys checks that distinct keys give distinct streams
func TestEvalDistinctKeys(t *testing.T) {
	rng := new(big.Int).Lsh(big.NewInt(1), 128)
	p1, err := New(testKey(t), rng)
	require.NoError(t, err)
	p2, err := New(testKey(t), rng)
	require.NoError(t, err)

	a, err := p1.Eval(0)
	require.NoError(t, err)
	b, err := p2.Eval(0)
	require.NoError(t, err)
	require.NotEqual(t, 0, a.Cmp(b))
}

// TestEvalDistinctIndices checks that distinct indices give distinct outputs
// for a wide range
func TestEvalDistinctIndices(t *testing.T) {
	p, err := New(testKey(t), new(big.Int).Lsh(big.NewInt(1), 256))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for x := int64(0); x < 100; x++ {
		n, err := p.Eval(x)
		require.NoError(t, err)
		require.False(t, seen[n.String()], "collision at index %d", x)
		seen[n.String()] = true
	}
}

func TestEvalInt(t *testing.T) {
	p, err := NewInt(testKey(t), 100)
	require.NoError(t, err)
	for x := int64(0); x < 20; x++ {
		n, err := p.EvalInt(x)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, int64(0))
		require.Less(t, n, int64(100))
	}
}

func TestNewRejectsBadInputs(t *testing.T) {
	t.Run("Bad key size", func(t *testing.T) {
		_, err := New(make([]byte, 17), big.NewInt(10))
		require.ErrorIs(t, err, heartbeat.ErrInvalidKey)
	})

	t.Run("Zero range", func(t *testing.T) {
		_, err := New(make([]byte, 32), big.NewInt(0))
		require.ErrorIs(t, err, heartbeat.ErrMalformedInput)
	})

	t.Run("Nil range", func(t *testing.T) {
		_, err := New(make([]byte, 32), nil)
		require.ErrorIs(t, err, heartbeat.ErrMalformedInput)
	})
}
