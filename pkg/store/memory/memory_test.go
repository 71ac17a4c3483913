package memory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/heartbeat-go/pkg/store"
)

func testRecord(id string) *store.BeatRecord {
	return &store.BeatRecord{
		ID:         id,
		Scheme:     store.SchemeMerkle,
		CreatedAt:  1700000000,
		SchemeData: json.RawMessage(`{"key":"AA=="}`),
		Tag:        json.RawMessage(`{"chunksz":8192}`),
		State:      json.RawMessage(`{"index":0}`),
	}
}

func TestSaveAndLoad(t *testing.T) {
	m := NewMemoryStore()
	defer func() { _ = m.Close() }()

	require.NoError(t, m.SaveBeat(testRecord("a")))

	loaded, err := m.LoadBeat("a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "a", loaded.ID)
	require.Equal(t, store.SchemeMerkle, loaded.Scheme)
}

func TestLoadMissing(t *testing.T) {
	m := NewMemoryStore()
	defer func() { _ = m.Close() }()

	loaded, err := m.LoadBeat("missing")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestListSorted(t *testing.T) {
	m := NewMemoryStore()
	defer func() { _ = m.Close() }()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.SaveBeat(testRecord(id)))
	}

	records, err := m.ListBeats()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "a", records[0].ID)
	require.Equal(t, "b", records[1].ID)
	require.Equal(t, "c", records[2].ID)
}

func TestDeleteIdempotent(t *testing.T) {
	m := NewMemoryStore()
	defer func() { _ = m.Close() }()

	require.NoError(t, m.SaveBeat(testRecord("a")))
	require.NoError(t, m.DeleteBeat("a"))
	require.NoError(t, m.DeleteBeat("a"))

	loaded, err := m.LoadBeat("a")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestUpdateState(t *testing.T) {
	m := NewMemoryStore()
	defer func() { _ = m.Close() }()

	require.NoError(t, m.SaveBeat(testRecord("a")))
	require.NoError(t, m.UpdateState("a", json.RawMessage(`{"index":5}`)))

	loaded, err := m.LoadBeat("a")
	require.NoError(t, err)
	require.JSONEq(t, `{"index":5}`, string(loaded.State))

	require.Error(t, m.UpdateState("missing", json.RawMessage(`{}`)))
}

func TestDeepCopy(t *testing.T) {
	m := NewMemoryStore()
	defer func() { _ = m.Close() }()

	record := testRecord("a")
	require.NoError(t, m.SaveBeat(record))

	// Mutating the saved record must not affect the store
	record.State = json.RawMessage(`{"index":99}`)

	loaded, err := m.LoadBeat("a")
	require.NoError(t, err)
	require.JSONEq(t, `{"index":0}`, string(loaded.State))

	// Mutating a loaded record must not affect the store either
	loaded.State = json.RawMessage(`{"index":77}`)
	again, err := m.LoadBeat("a")
	require.NoError(t, err)
	require.JSONEq(t, `{"index":0}`, string(again.State))
}

func TestRejectsInvalidRecord(t *testing.T) {
	m := NewMemoryStore()
	defer func() { _ = m.Close() }()

	require.Error(t, m.SaveBeat(nil))
	require.Error(t, m.SaveBeat(&store.BeatRecord{ID: "x", Scheme: "bogus"}))
}

func TestClosedStore(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Close())

	require.Error(t, m.SaveBeat(testRecord("a")))
	_, err := m.LoadBeat("a")
	require.Error(t, err)
	_, err = m.ListBeats()
	require.Error(t, err)
	require.Error(t, m.DeleteBeat("a"))
	require.Error(t, m.HealthCheck())
}
