package merkle

import (
	"bytes"
	"fmt"
	"math/bits"
)

// peak is the root of one perfect binary subtree in the range. Peaks are
// kept left to right, which means strictly decreasing height.
type peak struct {
	height int
	hash   []byte
}

// MountainRange is an append-only forest of perfect binary trees committing
// to a growing log. After n appends the peak heights are exactly the set
// bits of n. Leaf hashes are retained so proofs over any prefix structure
// can be regenerated without rebuilding.
//
// Append requires single-writer discipline. Proof verification is pure, so
// proofs stay valid against the root captured at issuance time even after
// further appends.
type MountainRange struct {
	th         *TreeHasher
	peaks      []peak
	leafHashes [][]byte
}

// NewMountainRange returns an empty mountain range.
func NewMountainRange(th *TreeHasher) *MountainRange {
	return &MountainRange{th: th}
}

// LeafCount returns the number of appended leaves.
func (m *MountainRange) LeafCount() int {
	return len(m.leafHashes)
}

// Append adds a pre-hashed leaf and returns the new root. The leaf starts
// as a height-0 peak; while the two rightmost peaks have equal height they
// merge into one peak a level up, mirroring carry propagation in a binary
// increment.
func (m *MountainRange) Append(leafHash []byte) ([]byte, error) {
	if len(leafHash) != m.th.Size() {
		return nil, fmt.Errorf("%w: leaf hash has %d bytes, want %d",
			ErrMismatchedHashSize, len(leafHash), m.th.Size())
	}
	lh := append([]byte(nil), leafHash...)
	m.leafHashes = append(m.leafHashes, lh)
	m.peaks = append(m.peaks, peak{height: 0, hash: lh})
	for n := len(m.peaks); n >= 2 && m.peaks[n-1].height == m.peaks[n-2].height; n = len(m.peaks) {
		left, right := m.peaks[n-2], m.peaks[n-1]
		merged := peak{
			height: left.height + 1,
			hash:   m.th.HashNode(left.hash, right.hash),
		}
		m.peaks = append(m.peaks[:n-2], merged)
	}
	return m.Root(), nil
}

// Push hashes raw data as a leaf and appends it, returning the new root.
func (m *MountainRange) Push(data []byte) []byte {
	root, err := m.Append(m.th.HashLeaf(data))
	if err != nil {
		// HashLeaf output always has the engine's width
		panic(err)
	}
	return root
}

// Root bags the current peaks into one commitment, right to left: the fold
// starts at the rightmost (lowest) peak and each peak to its left becomes
// the left operand, so root = HashNode(P0, HashNode(P1, ... Pk)) with P0
// the tallest peak. An empty range commits to EmptyRoot.
func (m *MountainRange) Root() []byte {
	if len(m.peaks) == 0 {
		return m.th.EmptyRoot()
	}
	acc := m.peaks[len(m.peaks)-1].hash
	for i := len(m.peaks) - 2; i >= 0; i-- {
		acc = m.th.HashNode(m.peaks[i].hash, acc)
	}
	return acc
}

// PeakHashes returns the current peak hashes, left to right.
func (m *MountainRange) PeakHashes() [][]byte {
	out := make([][]byte, len(m.peaks))
	for i, p := range m.peaks {
		out[i] = p.hash
	}
	return out
}

// peakHeights returns the peak heights of a range with n leaves, left to
// right: one peak per set bit of n, tallest first.
func peakHeights(n int) []int {
	heights := make([]int, 0, bits.OnesCount(uint(n)))
	for i := bits.Len(uint(n)) - 1; i >= 0; i-- {
		if n>>uint(i)&1 == 1 {
			heights = append(heights, i)
		}
	}
	return heights
}

// MountainProof proves a leaf's inclusion in the range at a specific log
// length: the intra-peak path from the leaf to its owning peak, the peak
// hashes at issuance, and the leaf count the proof is bound to.
type MountainProof struct {
	index     int
	leafCount int
	steps     []ProofStep
	peaks     [][]byte
}

// NewMountainProof constructs a proof from its parts: the leaf index, the
// log length the proof binds to, the bottom-to-top intra-peak steps and the
// left-to-right peak hashes.
func NewMountainProof(index, leafCount int, steps []ProofStep, peaks [][]byte) MountainProof {
	return MountainProof{index: index, leafCount: leafCount, steps: steps, peaks: peaks}
}

// Index returns the leaf index this proof was generated for.
func (p MountainProof) Index() int {
	return p.index
}

// LeafCount returns the log length the proof is bound to.
func (p MountainProof) LeafCount() int {
	return p.leafCount
}

// Steps returns the bottom-to-top intra-peak sibling steps.
func (p MountainProof) Steps() []ProofStep {
	return p.steps
}

// Peaks returns the peak hashes at issuance, left to right.
func (p MountainProof) Peaks() [][]byte {
	return p.peaks
}

// ProveLeaf returns the inclusion proof for the leaf at index against the
// current log length. The owning peak's interior is recomputed from the
// retained leaf hashes.
func (m *MountainRange) ProveLeaf(index int) (MountainProof, error) {
	if index < 0 || index >= len(m.leafHashes) {
		return MountainProof{}, fmt.Errorf("%w: index %d, leaf count %d",
			ErrIndexOutOfRange, index, len(m.leafHashes))
	}
	start := 0
	size := 0
	for _, pk := range m.peaks {
		size = 1 << uint(pk.height)
		if index < start+size {
			break
		}
		start += size
	}
	level := make([][]byte, size)
	copy(level, m.leafHashes[start:start+size])
	steps := make([]ProofStep, 0, bits.TrailingZeros(uint(size)))
	idx := index - start
	for len(level) > 1 {
		// the peak subtree is perfect, every element has a true sibling
		steps = append(steps, ProofStep{
			Sibling:       level[idx^1],
			SiblingOnLeft: idx%2 == 1,
		})
		level = hashLevel(m.th, level)
		idx /= 2
	}
	return MountainProof{
		index:     index,
		leafCount: len(m.leafHashes),
		steps:     steps,
		peaks:     m.PeakHashes(),
	}, nil
}

// VerifyInclusion checks that leafHash sits at index in the log of
// p.LeafCount() leaves committed to by root. The owning peak's root is
// recomputed from the intra-peak path, substituted into the peak list and
// bagged in the fixed order. Malformed or forged input yields false, never
// a panic.
func (p MountainProof) VerifyInclusion(th *TreeHasher, leafHash []byte, index int, root []byte) bool {
	if index < 0 || index != p.index || p.leafCount <= index {
		return false
	}
	if len(leafHash) != th.Size() || !stepsWellFormed(th, p.steps) {
		return false
	}
	heights := peakHeights(p.leafCount)
	if len(p.peaks) != len(heights) {
		return false
	}
	start := 0
	owning := -1
	for k, h := range heights {
		size := 1 << uint(h)
		if index < start+size {
			owning = k
			break
		}
		start += size
	}
	if owning < 0 {
		// index beyond the bound leaf count
		return false
	}
	// shape check before any hashing
	if len(p.steps) != heights[owning] {
		return false
	}
	for _, ph := range p.peaks {
		if len(ph) != th.Size() {
			return false
		}
	}

	bag := make([][]byte, len(p.peaks))
	copy(bag, p.peaks)
	bag[owning] = foldPath(th, leafHash, p.steps)
	acc := bag[len(bag)-1]
	for i := len(bag) - 2; i >= 0; i-- {
		acc = th.HashNode(bag[i], acc)
	}
	return bytes.Equal(acc, root)
}
