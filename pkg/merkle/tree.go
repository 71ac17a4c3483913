// Package merkle implements the merkle-tree proof-of-storage scheme: a
// static binary hash tree whose leaves are seeded HMACs of file chunks.
// The verifier keeps only the root; the prover keeps the leaf-stripped
// tree and answers challenges with a leaf and its branch.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"math/bits"
	"strconv"
)

// Node numbering scheme (flat array):
//
//	nodes                                   0
//	                        1                               2
//	                3               4               5               6
//	            7      8        9      10      11      12      13      14
//
// parent(i) = (i+1)/2 - 1, left(i) = 2(i+1)-1, right(i) = 2(i+1).
// Leaf ordinal j sits at position j + 2^order - 1. Positions beyond the
// leaf count hold empty nodes.

// Leaf is a single tree leaf: the seeded chunk HMAC and its ordinal.
type Leaf struct {
	Index int64
	Blob  []byte
}

// Hash returns SHA256(blob || decimal(index)).
func (l *Leaf) Hash() []byte {
	h := sha256.New()
	h.Write(l.Blob)
	h.Write([]byte(strconv.FormatInt(l.Index, 10)))
	return h.Sum(nil)
}

// Branch is an ordered sequence of row pairs (left hash, right hash) from
// the leaf level to just below the root.
type Branch struct {
	rows [][2][]byte
}

// NewBranch creates a branch with the given number of rows.
func NewBranch(order int) *Branch {
	return &Branch{rows: make([][2][]byte, order)}
}

// Order returns the number of rows in the branch.
func (b *Branch) Order() int {
	return len(b.rows)
}

// Left returns the left hash of row i.
func (b *Branch) Left(i int) []byte {
	return b.rows[i][0]
}

// Right returns the right hash of row i.
func (b *Branch) Right(i int) []byte {
	return b.rows[i][1]
}

// SetRow sets row i of the branch.
func (b *Branch) SetRow(i int, left, right []byte) {
	b.rows[i] = [2][]byte{left, right}
}

// Tree is a static merkle tree: add leaves with AddLeaf, then call Build.
// Nodes are stored as a flat contiguous array of hashes; an empty node is
// an empty byte string.
type Tree struct {
	nodes  [][]byte
	order  int
	leaves []*Leaf
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// AddLeaf appends a leaf whose ordinal is the current leaf count. The
// tree is not updated until Build is called.
func (t *Tree) AddLeaf(blob []byte) {
	t.leaves = append(t.leaves, &Leaf{Index: int64(len(t.leaves)), Blob: blob})
}

// LeafCount returns the number of leaves added to the tree.
func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// Order returns the height of the built tree.
func (t *Tree) Order() int {
	return t.order
}

// Build constructs the tree from the added leaves, level by level upward.
// A parent hash covers only its non-empty children.
func (t *Tree) Build() {
	t.order = orderFor(len(t.leaves))
	n := 1 << t.order
	t.nodes = make([][]byte, 2*n)

	for j := 0; j < len(t.leaves); j++ {
		t.nodes[j+n-1] = t.leaves[j].Hash()
	}

	for i := 1; i <= t.order; i++ {
		p := 1 << (t.order - i)
		for j := 0; j < p; j++ {
			k := p + j - 1
			h := sha256.New()
			if l := t.nodes[leftChild(k)]; len(l) > 0 {
				h.Write(l)
			}
			if r := t.nodes[rightChild(k)]; len(r) > 0 {
				h.Write(r)
			}
			t.nodes[k] = h.Sum(nil)
		}
	}
}

// GetBranch returns the branch for leaf i, usable after Build even on a
// leaf-stripped tree.
func (t *Tree) GetBranch(i int64) *Branch {
	branch := NewBranch(t.order)
	j := int(i) + 1<<t.order - 1

	for k := 0; k < t.order; k++ {
		if isLeft(j) {
			branch.SetRow(k, t.nodes[j], t.nodes[j+1])
		} else {
			branch.SetRow(k, t.nodes[j-1], t.nodes[j])
		}
		j = parent(j)
	}

	return branch
}

// Root returns the merkle root of the built tree.
func (t *Tree) Root() []byte {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[0]
}

// StripLeaves clears the leaf list while preserving all node hashes.
// The stripped tree is the file tag stored on the prover.
func (t *Tree) StripLeaves() {
	t.leaves = nil
}

// VerifyBranch checks that the branch connects the leaf to the root. At
// each row the running hash must appear on one side; the next running
// hash covers the row's non-empty sides. A tree with a single leaf has an
// empty branch and verification reduces to leaf.Hash() == root.
func VerifyBranch(leaf *Leaf, branch *Branch, root []byte) bool {
	if leaf == nil || branch == nil {
		return false
	}
	lh := leaf.Hash()
	for i := 0; i < branch.Order(); i++ {
		left, right := branch.Left(i), branch.Right(i)
		if !bytes.Equal(left, lh) && !bytes.Equal(right, lh) {
			return false
		}
		h := sha256.New()
		if len(left) > 0 {
			h.Write(left)
		}
		if len(right) > 0 {
			h.Write(right)
		}
		lh = h.Sum(nil)
	}
	return bytes.Equal(lh, root)
}

func parent(i int) int {
	return (i+1)/2 - 1
}

func leftChild(i int) int {
	return (i+1)*2 - 1
}

func rightChild(i int) int {
	return (i + 1) * 2
}

func isLeft(i int) bool {
	return i%2 != 0
}

// orderFor returns ceil(log2(n)), the tree height needed for n leaves.
func orderFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
