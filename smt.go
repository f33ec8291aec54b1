package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// MaxSparseDepth bounds the configurable key space; 256 bits covers a full
// hash-sized key.
const MaxSparseDepth = 256

// ErrInvalidDepth is returned by NewSparse for a depth outside [1, MaxSparseDepth].
var ErrInvalidDepth = errors.New("sparse tree depth out of range")

// emptyKey identifies one per-depth empty-subtree table. Tables are
// process-wide: computed once on first use and shared by every SparseTree
// with the same hasher instance, depth and default value.
type emptyKey struct {
	th           *TreeHasher
	depth        int
	defaultValue string
}

var (
	emptyTablesMu sync.Mutex
	emptyTables   = make(map[emptyKey][][]byte)
)

// emptyHashes returns the table e[0..depth] where e[0] is the default leaf
// hash and e[i+1] = HashNode(e[i], e[i]) is the root of a fully empty
// subtree of height i+1.
func emptyHashes(th *TreeHasher, depth int, defaultValue []byte) [][]byte {
	k := emptyKey{th: th, depth: depth, defaultValue: string(defaultValue)}
	emptyTablesMu.Lock()
	defer emptyTablesMu.Unlock()
	if t, ok := emptyTables[k]; ok {
		return t
	}
	t := make([][]byte, depth+1)
	t[0] = th.HashLeaf(defaultValue)
	for i := 0; i < depth; i++ {
		t[i+1] = th.HashNode(t[i], t[i])
	}
	emptyTables[k] = t
	return t
}

// SparseTree is a fixed-depth sparse Merkle tree over a depth-bit key space.
// Only populated paths are materialized; every untouched subtree is
// represented by its precomputed empty hash. The root is a pure function of
// the populated key/value set, independent of insertion order.
//
// Insert requires single-writer discipline. Reads of a quiescent tree and
// all proof verification are safe concurrently.
type SparseTree struct {
	th          *TreeHasher
	depth       int
	defaultLeaf []byte
	empty       [][]byte

	leaves map[string][]byte // key -> value hash
	nodes  map[string][]byte // (level, path prefix) -> node hash
}

// NewSparse returns an empty sparse tree of the given depth. Absent keys
// implicitly hold defaultValue.
func NewSparse(th *TreeHasher, depth int, defaultValue []byte) (*SparseTree, error) {
	if depth < 1 || depth > MaxSparseDepth {
		return nil, fmt.Errorf("%w: depth %d, want 1..%d", ErrInvalidDepth, depth, MaxSparseDepth)
	}
	empty := emptyHashes(th, depth, defaultValue)
	return &SparseTree{
		th:          th,
		depth:       depth,
		defaultLeaf: empty[0],
		empty:       empty,
		leaves:      make(map[string][]byte),
		nodes:       make(map[string][]byte),
	}, nil
}

// Depth returns the configured tree depth in bits.
func (s *SparseTree) Depth() int {
	return s.depth
}

// KeyBytes returns the required key length in bytes: ceil(depth/8).
func (s *SparseTree) KeyBytes() int {
	return (s.depth + 7) / 8
}

// checkKey enforces the key form: exactly ceil(depth/8) bytes, MSB first,
// with any unused high bits zero.
func (s *SparseTree) checkKey(key []byte) error {
	if len(key) != s.KeyBytes() {
		return fmt.Errorf("%w: key is %d bytes, want %d", ErrKeyOutOfRange, len(key), s.KeyBytes())
	}
	if !keyPaddingClear(key, s.depth) {
		return fmt.Errorf("%w: unused high bits are set in a %d-bit key", ErrKeyOutOfRange, s.depth)
	}
	return nil
}

// keyBit returns bit i of the key counting from the least significant end.
// Bit i selects the left/right position when recombining at level i.
func keyBit(key []byte, i int) byte {
	return key[len(key)-1-i/8] >> (i % 8) & 1
}

// keyPaddingClear reports whether the bits above the depth-bit range are
// all zero.
func keyPaddingClear(key []byte, depth int) bool {
	if extra := len(key)*8 - depth; extra > 0 {
		return key[0]>>(8-extra) == 0
	}
	return true
}

// flipBit toggles bit i (LSB-first) in place.
func flipBit(key []byte, i int) {
	key[len(key)-1-i/8] ^= 1 << (i % 8)
}

// nodeKey addresses the materialized node at the given level on the key's
// path: the level number followed by the key with its lowest level bits
// cleared. Level 0 is the leaf layer, level depth the root.
func (s *SparseTree) nodeKey(level int, key []byte) string {
	buf := make([]byte, 2+len(key))
	buf[0] = byte(level >> 8)
	buf[1] = byte(level)
	copy(buf[2:], key)
	prefix := buf[2:]
	whole := level / 8
	for i := 0; i < whole && i < len(prefix); i++ {
		prefix[len(prefix)-1-i] = 0
	}
	if rem := level % 8; rem > 0 && whole < len(prefix) {
		prefix[len(prefix)-1-whole] &= 0xFF << rem
	}
	return string(buf)
}

// Root returns the current root. An empty tree's root is the hash of a
// fully empty subtree of the configured depth.
func (s *SparseTree) Root() []byte {
	if r, ok := s.nodes[s.nodeKey(s.depth, make([]byte, s.KeyBytes()))]; ok {
		return r
	}
	return s.empty[s.depth]
}

// Insert sets the value under key and returns the new root. The path from
// the leaf to the root is recomputed using materialized siblings where they
// exist and empty-subtree hashes everywhere else.
func (s *SparseTree) Insert(key, value []byte) ([]byte, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	cur := s.th.HashLeaf(value)
	s.leaves[string(key)] = cur
	s.nodes[s.nodeKey(0, key)] = cur

	sib := make([]byte, len(key))
	for level := 0; level < s.depth; level++ {
		copy(sib, key)
		flipBit(sib, level)
		sh, ok := s.nodes[s.nodeKey(level, sib)]
		if !ok {
			sh = s.empty[level]
		}
		if keyBit(key, level) == 0 {
			cur = s.th.HashNode(cur, sh)
		} else {
			cur = s.th.HashNode(sh, cur)
		}
		s.nodes[s.nodeKey(level+1, key)] = cur
	}
	return cur, nil
}

// Get returns the value hash stored under key, or the default leaf hash if
// the key was never inserted.
func (s *SparseTree) Get(key []byte) ([]byte, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	if v, ok := s.leaves[string(key)]; ok {
		return v, nil
	}
	return s.defaultLeaf, nil
}

// SparseProof is the depth sibling hashes along a key's path, bottom to
// top. The same shape serves inclusion and non-inclusion: the claim differs
// only in the leaf hash the verifier starts from.
type SparseProof struct {
	siblings [][]byte
}

// NewSparseProof constructs a proof from bottom-to-top sibling hashes.
func NewSparseProof(siblings [][]byte) SparseProof {
	return SparseProof{siblings: siblings}
}

// Siblings returns the bottom-to-top sibling hashes.
func (p SparseProof) Siblings() [][]byte {
	return p.siblings
}

// ProveKey returns the proof for key, populated or not.
func (s *SparseTree) ProveKey(key []byte) (SparseProof, error) {
	if err := s.checkKey(key); err != nil {
		return SparseProof{}, err
	}
	siblings := make([][]byte, s.depth)
	sib := make([]byte, len(key))
	for level := range siblings {
		copy(sib, key)
		flipBit(sib, level)
		if h, ok := s.nodes[s.nodeKey(level, sib)]; ok {
			siblings[level] = h
		} else {
			siblings[level] = s.empty[level]
		}
	}
	return SparseProof{siblings: siblings}, nil
}

// VerifyValue checks the proof against root for the claim "key holds
// value". A nil value claims the key is unpopulated, i.e. holds
// defaultValue; this is the non-inclusion case. Any malformed input yields
// false, never a panic.
func (p SparseProof) VerifyValue(th *TreeHasher, depth int, defaultValue, root, key, value []byte) bool {
	if depth < 1 || depth > MaxSparseDepth || len(p.siblings) != depth {
		return false
	}
	if len(key) != (depth+7)/8 || !keyPaddingClear(key, depth) {
		return false
	}
	steps := make([]ProofStep, depth)
	for level, sib := range p.siblings {
		if len(sib) != th.Size() {
			return false
		}
		steps[level] = ProofStep{Sibling: sib, SiblingOnLeft: keyBit(key, level) == 1}
	}
	var start []byte
	if value == nil {
		start = th.HashLeaf(defaultValue)
	} else {
		start = th.HashLeaf(value)
	}
	return bytes.Equal(foldPath(th, start, steps), root)
}
