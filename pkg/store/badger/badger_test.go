package badger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/heartbeat-go/pkg/store"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	bs, err := NewBadgerStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

func testRecord(id string) *store.BeatRecord {
	return &store.BeatRecord{
		ID:         id,
		Scheme:     store.SchemeSwizzle,
		CreatedAt:  1700000000,
		SchemeData: json.RawMessage(`{"sectors":10}`),
		Tag:        json.RawMessage(`{"sigma":[]}`),
		State:      json.RawMessage(`{"chunks":3}`),
	}
}

func TestSaveLoadDelete(t *testing.T) {
	bs := newTestStore(t)

	require.NoError(t, bs.SaveBeat(testRecord("a")))

	loaded, err := bs.LoadBeat("a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, store.SchemeSwizzle, loaded.Scheme)

	require.NoError(t, bs.DeleteBeat("a"))
	loaded, err = bs.LoadBeat("a")
	require.NoError(t, err)
	require.Nil(t, loaded)

	// Delete is idempotent
	require.NoError(t, bs.DeleteBeat("a"))
}

func TestListBeats(t *testing.T) {
	bs := newTestStore(t)

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, bs.SaveBeat(testRecord(id)))
	}

	records, err := bs.ListBeats()
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Badger iterates keys in byte order
	require.Equal(t, "a", records[0].ID)
	require.Equal(t, "b", records[1].ID)
	require.Equal(t, "c", records[2].ID)
}

func TestUpdateState(t *testing.T) {
	bs := newTestStore(t)

	require.NoError(t, bs.SaveBeat(testRecord("a")))
	require.NoError(t, bs.UpdateState("a", json.RawMessage(`{"chunks":9}`)))

	loaded, err := bs.LoadBeat("a")
	require.NoError(t, err)
	require.JSONEq(t, `{"chunks":9}`, string(loaded.State))

	require.Error(t, bs.UpdateState("missing", json.RawMessage(`{}`)))
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	bs, err := NewBadgerStore(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, bs.SaveBeat(testRecord("a")))
	require.NoError(t, bs.Close())

	reopened, err := NewBadgerStore(dir, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.LoadBeat("a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "a", loaded.ID)
}

func TestHealthCheckAndClose(t *testing.T) {
	bs := newTestStore(t)
	require.NoError(t, bs.HealthCheck())

	require.NoError(t, bs.Close())
	require.Error(t, bs.HealthCheck())
	require.Error(t, bs.SaveBeat(testRecord("a")))

	// Close is idempotent
	require.NoError(t, bs.Close())
}
