package merkle

import "bytes"

// ProofStep is one level of a verification path: the sibling hash at that
// level and the side it combines on. SiblingOnLeft reports whether the
// sibling is the left operand of HashNode when recomputing the parent.
type ProofStep struct {
	Sibling       []byte
	SiblingOnLeft bool
}

// foldPath recomputes a root candidate from a starting hash and an ordered,
// bottom-to-top list of steps. This single fold backs proof verification for
// the dense tree, the sparse tree and the mountain range; the variants differ
// only in how they derive the steps.
func foldPath(th *TreeHasher, start []byte, steps []ProofStep) []byte {
	cur := start
	for _, s := range steps {
		if s.SiblingOnLeft {
			cur = th.HashNode(s.Sibling, cur)
		} else {
			cur = th.HashNode(cur, s.Sibling)
		}
	}
	return cur
}

// stepsWellFormed reports whether every sibling hash has the engine's digest
// width. Verifiers check this before hashing anything.
func stepsWellFormed(th *TreeHasher, steps []ProofStep) bool {
	for _, s := range steps {
		if len(s.Sibling) != th.Size() {
			return false
		}
	}
	return true
}

// Proof is an inclusion proof for a single leaf of a dense tree.
type Proof struct {
	index int
	steps []ProofStep
}

// NewProof constructs a proof from a leaf index and its bottom-to-top
// sibling steps.
func NewProof(index int, steps []ProofStep) Proof {
	return Proof{index: index, steps: steps}
}

// Index returns the leaf index this proof was generated for.
func (p Proof) Index() int {
	return p.index
}

// Steps returns the bottom-to-top sibling steps.
func (p Proof) Steps() []ProofStep {
	return p.steps
}

// VerifyInclusion checks the proof by recomputing the root from leafHash and
// comparing it to root. Malformed input of any shape yields false, never a
// panic; this path is exposed to untrusted provers.
func (p Proof) VerifyInclusion(th *TreeHasher, leafHash, root []byte) bool {
	if len(leafHash) != th.Size() || !stepsWellFormed(th, p.steps) {
		return false
	}
	return bytes.Equal(foldPath(th, leafHash, p.steps), root)
}
