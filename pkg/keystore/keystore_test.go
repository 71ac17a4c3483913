package keystore

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

func TestDeriveKeyDeterminism(t *testing.T) {
	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	ks1, err := NewKeyStore(append([]byte{}, master...))
	require.NoError(t, err)
	ks2, err := NewKeyStore(append([]byte{}, master...))
	require.NoError(t, err)

	k1, err := ks1.DeriveKey("beat-1")
	require.NoError(t, err)
	k2, err := ks2.DeriveKey("beat-1")
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)
}

func TestDeriveKeyDistinctBeats(t *testing.T) {
	ks, err := NewKeyStore(nil)
	require.NoError(t, err)

	k1, err := ks.DeriveKey("beat-1")
	require.NoError(t, err)
	k2, err := ks.DeriveKey("beat-2")
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestNewKeyStoreRejectsBadSize(t *testing.T) {
	_, err := NewKeyStore(make([]byte, 16))
	require.ErrorIs(t, err, heartbeat.ErrInvalidKey)
}

func TestCloseZeroizes(t *testing.T) {
	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	ks, err := NewKeyStore(master)
	require.NoError(t, err)

	ks.Close()
	require.Equal(t, make([]byte, 32), master)

	_, err = ks.DeriveKey("beat-1")
	require.ErrorIs(t, err, heartbeat.ErrInvalidKey)

	// Idempotent
	ks.Close()
}
