package merkle

import (
	"encoding/json"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// Canonical wire shapes. Byte strings travel base64-encoded; integers and
// floats pass through unchanged. Decoding rejects structurally invalid
// input with ErrMalformedInput.

type leafDTO struct {
	Index *int64  `json:"index"`
	Blob  *string `json:"blob"`
}

// MarshalJSON implements the canonical leaf shape.
func (l *Leaf) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"index": l.Index,
		"blob":  heartbeat.EncodeBytes(l.Blob),
	})
}

// UnmarshalJSON decodes the canonical leaf shape.
func (l *Leaf) UnmarshalJSON(data []byte) error {
	var dto leafDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("leaf: %v", err)
	}
	if dto.Index == nil || dto.Blob == nil {
		return heartbeat.Malformed("leaf: missing index or blob")
	}
	blob, err := heartbeat.DecodeBytes(*dto.Blob)
	if err != nil {
		return err
	}
	l.Index = *dto.Index
	l.Blob = blob
	return nil
}

type branchDTO struct {
	Rows *[][]string `json:"rows"`
}

// MarshalJSON implements the canonical branch shape.
func (b *Branch) MarshalJSON() ([]byte, error) {
	rows := make([][]string, len(b.rows))
	for i, row := range b.rows {
		rows[i] = []string{
			heartbeat.EncodeBytes(row[0]),
			heartbeat.EncodeBytes(row[1]),
		}
	}
	return json.Marshal(map[string]interface{}{"rows": rows})
}

// UnmarshalJSON decodes the canonical branch shape.
func (b *Branch) UnmarshalJSON(data []byte) error {
	var dto branchDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("branch: %v", err)
	}
	if dto.Rows == nil {
		return heartbeat.Malformed("branch: missing rows")
	}
	rows := make([][2][]byte, len(*dto.Rows))
	for i, row := range *dto.Rows {
		if len(row) != 2 {
			return heartbeat.Malformed("branch: row %d has %d entries, want 2", i, len(row))
		}
		left, err := heartbeat.DecodeBytes(row[0])
		if err != nil {
			return err
		}
		right, err := heartbeat.DecodeBytes(row[1])
		if err != nil {
			return err
		}
		rows[i] = [2][]byte{left, right}
	}
	b.rows = rows
	return nil
}

type treeDTO struct {
	Nodes  *[]string          `json:"nodes"`
	Order  *int               `json:"order"`
	Leaves *[]json.RawMessage `json:"leaves"`
}

// MarshalJSON implements the canonical tree shape.
func (t *Tree) MarshalJSON() ([]byte, error) {
	leaves := make([]json.RawMessage, len(t.leaves))
	for i, leaf := range t.leaves {
		data, err := leaf.MarshalJSON()
		if err != nil {
			return nil, err
		}
		leaves[i] = data
	}
	return json.Marshal(map[string]interface{}{
		"nodes":  heartbeat.EncodeBytesList(t.nodes),
		"order":  t.order,
		"leaves": leaves,
	})
}

// UnmarshalJSON decodes the canonical tree shape.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var dto treeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("tree: %v", err)
	}
	if dto.Nodes == nil || dto.Order == nil || dto.Leaves == nil {
		return heartbeat.Malformed("tree: missing nodes, order or leaves")
	}
	nodes, err := heartbeat.DecodeBytesList(*dto.Nodes)
	if err != nil {
		return err
	}
	leaves := make([]*Leaf, len(*dto.Leaves))
	for i, raw := range *dto.Leaves {
		leaf := &Leaf{}
		if err := leaf.UnmarshalJSON(raw); err != nil {
			return err
		}
		leaves[i] = leaf
	}
	t.nodes = nodes
	t.order = *dto.Order
	t.leaves = leaves
	return nil
}

type challengeDTO struct {
	Seed  *string `json:"seed"`
	Index *int64  `json:"index"`
}

// MarshalJSON implements the canonical challenge shape.
func (c *Challenge) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"seed":  heartbeat.EncodeBytes(c.Seed),
		"index": c.Index,
	})
}

// UnmarshalJSON decodes the canonical challenge shape.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	var dto challengeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("challenge: %v", err)
	}
	if dto.Seed == nil || dto.Index == nil {
		return heartbeat.Malformed("challenge: missing seed or index")
	}
	seed, err := heartbeat.DecodeBytes(*dto.Seed)
	if err != nil {
		return err
	}
	c.Seed = seed
	c.Index = *dto.Index
	return nil
}

type tagDTO struct {
	Tree      *json.RawMessage `json:"tree"`
	ChunkSize *int64           `json:"chunksz"`
}

// MarshalJSON implements the canonical tag shape.
func (t *Tag) MarshalJSON() ([]byte, error) {
	tree, err := t.Tree.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"tree":    json.RawMessage(tree),
		"chunksz": t.ChunkSize,
	})
}

// UnmarshalJSON decodes the canonical tag shape.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var dto tagDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("tag: %v", err)
	}
	if dto.Tree == nil || dto.ChunkSize == nil {
		return heartbeat.Malformed("tag: missing tree or chunksz")
	}
	tree := NewTree()
	if err := tree.UnmarshalJSON(*dto.Tree); err != nil {
		return err
	}
	t.Tree = tree
	t.ChunkSize = *dto.ChunkSize
	return nil
}

type stateDTO struct {
	Index     *int64   `json:"index"`
	Seed      *string  `json:"seed"`
	N         *int64   `json:"n"`
	Root      *string  `json:"root"`
	HMAC      *string  `json:"hmac"`
	Timestamp *float64 `json:"timestamp"`
}

// MarshalJSON implements the canonical state shape.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"index":     s.Index,
		"seed":      heartbeat.EncodeBytes(s.Seed),
		"n":         s.N,
		"root":      heartbeat.EncodeBytes(s.Root),
		"hmac":      heartbeat.EncodeBytes(s.HMAC),
		"timestamp": s.Timestamp,
	})
}

// UnmarshalJSON decodes the canonical state shape.
func (s *State) UnmarshalJSON(data []byte) error {
	var dto stateDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("state: %v", err)
	}
	if dto.Index == nil || dto.Seed == nil || dto.N == nil ||
		dto.Root == nil || dto.HMAC == nil || dto.Timestamp == nil {
		return heartbeat.Malformed("state: missing field")
	}
	seed, err := heartbeat.DecodeBytes(*dto.Seed)
	if err != nil {
		return err
	}
	root, err := heartbeat.DecodeBytes(*dto.Root)
	if err != nil {
		return err
	}
	sig, err := heartbeat.DecodeBytes(*dto.HMAC)
	if err != nil {
		return err
	}
	s.Index = *dto.Index
	s.Seed = seed
	s.N = *dto.N
	s.Root = root
	s.HMAC = sig
	s.Timestamp = *dto.Timestamp
	return nil
}

type proofDTO struct {
	Leaf   *json.RawMessage `json:"leaf"`
	Branch *json.RawMessage `json:"branch"`
}

// MarshalJSON implements the canonical proof shape.
func (p *Proof) MarshalJSON() ([]byte, error) {
	leaf, err := p.Leaf.MarshalJSON()
	if err != nil {
		return nil, err
	}
	branch, err := p.Branch.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"leaf":   json.RawMessage(leaf),
		"branch": json.RawMessage(branch),
	})
}

// UnmarshalJSON decodes the canonical proof shape.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var dto proofDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("proof: %v", err)
	}
	if dto.Leaf == nil || dto.Branch == nil {
		return heartbeat.Malformed("proof: missing leaf or branch")
	}
	leaf := &Leaf{}
	if err := leaf.UnmarshalJSON(*dto.Leaf); err != nil {
		return err
	}
	branch := &Branch{}
	if err := branch.UnmarshalJSON(*dto.Branch); err != nil {
		return err
	}
	p.Leaf = leaf
	p.Branch = branch
	return nil
}

type schemeDTO struct {
	Key           *string  `json:"key"`
	CheckFraction *float64 `json:"check_fraction"`
}

// MarshalJSON serializes the scheme itself (key plus check fraction) so
// the public copy can travel to the prover.
func (s *Scheme) MarshalJSON() ([]byte, error) {
	var fraction *float64
	if s.checkFraction > 0 {
		fraction = &s.checkFraction
	}
	return json.Marshal(map[string]interface{}{
		"key":            heartbeat.EncodeBytes(s.key),
		"check_fraction": fraction,
	})
}

// UnmarshalJSON decodes a serialized scheme.
func (s *Scheme) UnmarshalJSON(data []byte) error {
	var dto schemeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("scheme: %v", err)
	}
	if dto.Key == nil {
		return heartbeat.Malformed("scheme: missing key")
	}
	key, err := heartbeat.DecodeBytes(*dto.Key)
	if err != nil {
		return err
	}
	s.key = key
	if dto.CheckFraction != nil {
		s.checkFraction = *dto.CheckFraction
	} else {
		s.checkFraction = 0
	}
	return nil
}
