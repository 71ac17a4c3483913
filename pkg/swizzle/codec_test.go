package swizzle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// roundtrip re-encodes a record through its wire form and checks the two
// wire forms match (structural equality).
func roundtrip(t *testing.T, value heartbeat.Record, fresh heartbeat.Record) {
	t.Helper()
	wire, err := value.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, fresh.UnmarshalJSON(wire))
	wire2, err := fresh.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, string(wire), string(wire2))
}

// TestWireRoundtrips checks fromdict(todict(x)) == x for every transport
// type of the swizzle scheme.
func TestWireRoundtrips(t *testing.T) {
	file, _ := randomFile(t, 8<<10)

	scheme := newTestScheme(t)
	tag, state, err := scheme.Encode(file)
	require.NoError(t, err)

	chal, err := scheme.GenChallenge(state)
	require.NoError(t, err)
	proof, err := scheme.Prove(file, chal, tag)
	require.NoError(t, err)

	t.Run("Challenge", func(t *testing.T) { roundtrip(t, chal, &Challenge{}) })
	t.Run("Tag", func(t *testing.T) { roundtrip(t, tag, &Tag{}) })
	t.Run("State", func(t *testing.T) { roundtrip(t, state, &State{}) })
	t.Run("Proof", func(t *testing.T) { roundtrip(t, proof, &Proof{}) })
}

// TestDecodedRecordsInteroperate ships every record over the wire and
// drives a full round with the decoded copies.
func TestDecodedRecordsInteroperate(t *testing.T) {
	file, _ := randomFile(t, 16<<10)

	scheme := newTestScheme(t)
	tag, state, err := scheme.Encode(file)
	require.NoError(t, err)

	tagWire, err := tag.MarshalJSON()
	require.NoError(t, err)
	tag2 := &Tag{}
	require.NoError(t, tag2.UnmarshalJSON(tagWire))

	stateWire, err := state.MarshalJSON()
	require.NoError(t, err)
	state2 := &State{}
	require.NoError(t, state2.UnmarshalJSON(stateWire))

	// The public scheme travels too, carrying prime and sectors
	pubWire, err := scheme.Public().MarshalJSON()
	require.NoError(t, err)
	pub := &Scheme{}
	require.NoError(t, pub.UnmarshalJSON(pubWire))
	require.Equal(t, 0, pub.prime.Cmp(scheme.prime))
	require.Equal(t, scheme.sectors, pub.sectors)
	require.Empty(t, pub.key)

	chal, err := scheme.GenChallenge(state2)
	require.NoError(t, err)

	chalWire, err := chal.MarshalJSON()
	require.NoError(t, err)
	chal2 := &Challenge{}
	require.NoError(t, chal2.UnmarshalJSON(chalWire))

	proof, err := pub.Prove(file, chal2, tag2)
	require.NoError(t, err)

	proofWire, err := proof.MarshalJSON()
	require.NoError(t, err)
	proof2 := &Proof{}
	require.NoError(t, proof2.UnmarshalJSON(proofWire))

	ok, err := scheme.Verify(proof2, chal2, state2)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestSigmaWireForm pins the decimal-string serialization of field
// elements.
func TestSigmaWireForm(t *testing.T) {
	file, _ := randomFile(t, 4<<10)

	scheme := newTestScheme(t)
	tag, _, err := scheme.Encode(file)
	require.NoError(t, err)

	wire, err := tag.MarshalJSON()
	require.NoError(t, err)

	var m map[string][]string
	require.NoError(t, json.Unmarshal(wire, &m))
	require.NotEmpty(t, m["sigma"])
	for _, s := range m["sigma"] {
		n, err := heartbeat.DecodeInt(s)
		require.NoError(t, err)
		require.True(t, n.Cmp(scheme.prime) < 0)
	}
}

// TestMalformedInputs checks that structurally invalid wire data is
// rejected with ErrMalformedInput for every transport type.
func TestMalformedInputs(t *testing.T) {
	inputs := []struct {
		name string
		data string
	}{
		{"Not JSON", `}{`},
		{"Wrong shape", `"just a string"`},
		{"Empty object", `{}`},
		{"Bad decimal", `{"sigma": ["12x"]}`},
		{"Bad base64", `{"chunks": 1, "v_max": "7", "key": "???"}`},
	}

	records := []struct {
		name string
		make func() heartbeat.Record
	}{
		{"Challenge", func() heartbeat.Record { return &Challenge{} }},
		{"Tag", func() heartbeat.Record { return &Tag{} }},
		{"State", func() heartbeat.Record { return &State{} }},
		{"Proof", func() heartbeat.Record { return &Proof{} }},
	}

	for _, rec := range records {
		for _, in := range inputs {
			t.Run(rec.name+"/"+in.name, func(t *testing.T) {
				err := rec.make().UnmarshalJSON([]byte(in.data))
				require.ErrorIs(t, err, heartbeat.ErrMalformedInput)
			})
		}
	}
}
