package merkle

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput         = errors.New("cannot build a tree from zero leaves")
	ErrIndexOutOfRange    = errors.New("leaf index out of range")
	ErrKeyOutOfRange      = errors.New("key does not match the configured depth")
	ErrInvalidProofShape  = errors.New("proof shape does not match the tree")
	ErrVerificationFailed = errors.New("recomputed root does not match the claimed root")
	ErrMismatchedHashSize = errors.New("hash size does not match the engine's digest width")
)

type treeOpts struct {
	parallel bool
	workers  int
}

// TreeOption configures BuildTree.
type TreeOption func(*treeOpts)

// Parallel lets BuildTree hash large layers across the given number of
// workers (0 means one per CPU). Construction output is identical to the
// sequential build.
func Parallel(workers int) TreeOption {
	return func(o *treeOpts) {
		o.parallel = true
		o.workers = workers
	}
}

// Tree is a dense binary Merkle tree over an ordered sequence of leaf
// hashes. Layers are stored as flat hash slices; parent/child positions are
// derived arithmetically (parent of i is i/2). A built Tree is immutable and
// safe for concurrent readers.
type Tree struct {
	th     *TreeHasher
	levels [][][]byte
}

// BuildTree builds the tree bottom-up from the given leaf hashes.
//
// Odd-layer policy: a lone last element at any layer is paired with itself,
// HashNode(x, x). This is fixed; proofs and verification both assume it.
func BuildTree(th *TreeHasher, leafHashes [][]byte, opts ...TreeOption) (*Tree, error) {
	if len(leafHashes) == 0 {
		return nil, ErrEmptyInput
	}
	for i, lh := range leafHashes {
		if len(lh) != th.Size() {
			return nil, fmt.Errorf("%w: leaf %d has %d bytes, want %d",
				ErrMismatchedHashSize, i, len(lh), th.Size())
		}
	}
	var o treeOpts
	for _, opt := range opts {
		opt(&o)
	}
	var bh *BatchHasher
	if o.parallel {
		bh = NewBatchHasher(th, o.workers)
	}

	level := make([][]byte, len(leafHashes))
	copy(level, leafHashes)
	levels := [][][]byte{level}
	for len(level) > 1 {
		var next [][]byte
		if bh != nil && len(level) >= parallelThreshold {
			next = bh.hashLevel(level)
		} else {
			next = hashLevel(th, level)
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{th: th, levels: levels}, nil
}

// hashLevel combines a layer pairwise into its parent layer, self-pairing a
// lone last element.
func hashLevel(th *TreeHasher, level [][]byte) [][]byte {
	next := make([][]byte, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, th.HashNode(level[i], level[i+1]))
		} else {
			next = append(next, th.HashNode(level[i], level[i]))
		}
	}
	return next
}

// Root returns the tree's root hash.
func (t *Tree) Root() []byte {
	return t.levels[len(t.levels)-1][0]
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Depth returns the number of proof steps between a leaf and the root.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// Prove returns the inclusion proof for the leaf at index: one
// (sibling, side) step per layer, bottom to top.
func (t *Tree) Prove(index int) (Proof, error) {
	if index < 0 || index >= t.LeafCount() {
		return Proof{}, fmt.Errorf("%w: index %d, leaf count %d",
			ErrIndexOutOfRange, index, t.LeafCount())
	}
	steps := make([]ProofStep, 0, t.Depth())
	idx := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sib := idx ^ 1
		if sib >= len(level) {
			// lone last element was self-paired during the build
			sib = idx
		}
		steps = append(steps, ProofStep{
			Sibling:       level[sib],
			SiblingOnLeft: idx%2 == 1,
		})
		idx /= 2
	}
	return NewProof(index, steps), nil
}

// VerifyProof checks p against this tree's own root and reports structural
// problems distinctly: ErrInvalidProofShape when the step count does not
// match the tree depth (detected before any hashing), ErrVerificationFailed
// when the recomputed root differs. Callers holding only a trusted root
// should use Proof.VerifyInclusion instead.
func (t *Tree) VerifyProof(p Proof, leafHash []byte) error {
	if len(p.Steps()) != t.Depth() {
		return fmt.Errorf("%w: got %d steps, want %d",
			ErrInvalidProofShape, len(p.Steps()), t.Depth())
	}
	if !p.VerifyInclusion(t.th, leafHash, t.Root()) {
		return ErrVerificationFailed
	}
	return nil
}
