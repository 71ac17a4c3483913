package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeatRecordRoundtrip(t *testing.T) {
	record := &BeatRecord{
		ID:         "beat-1",
		Scheme:     SchemeMerkle,
		CreatedAt:  1700000000,
		SchemeData: json.RawMessage(`{"key":"AA=="}`),
		Tag:        json.RawMessage(`{"chunksz":8192}`),
		State:      json.RawMessage(`{"index":0}`),
	}

	data, err := MarshalBeatRecord(record)
	require.NoError(t, err)

	decoded, err := UnmarshalBeatRecord(data)
	require.NoError(t, err)
	require.Equal(t, record.ID, decoded.ID)
	require.Equal(t, record.Scheme, decoded.Scheme)
	require.Equal(t, record.CreatedAt, decoded.CreatedAt)
	require.JSONEq(t, string(record.Tag), string(decoded.Tag))
	require.JSONEq(t, string(record.State), string(decoded.State))
}

func TestMarshalNilRecord(t *testing.T) {
	_, err := MarshalBeatRecord(nil)
	require.Error(t, err)
}

func TestUnmarshalEmptyData(t *testing.T) {
	_, err := UnmarshalBeatRecord(nil)
	require.Error(t, err)

	_, err = UnmarshalBeatRecord([]byte("{invalid"))
	require.Error(t, err)
}

func TestValidateRecord(t *testing.T) {
	require.Error(t, ValidateRecord(nil))
	require.Error(t, ValidateRecord(&BeatRecord{Scheme: SchemeMerkle}))
	require.Error(t, ValidateRecord(&BeatRecord{ID: "x", Scheme: "other"}))
	require.NoError(t, ValidateRecord(&BeatRecord{ID: "x", Scheme: SchemeSwizzle}))
}
