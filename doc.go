/*
Package merkle implements a family of hash-based authentication structures
sharing one hashing discipline: a dense binary Merkle tree over an ordered
leaf sequence, a fixed-depth sparse Merkle tree (SMT) over a D-bit key space,
and an append-only Merkle mountain range (MMR) over a growing log.

All three use the same domain-separated TreeHasher: leaves are hashed as
H(0x00 || data) and internal nodes as H(0x01 || left || right), so a leaf
hash can never collide with a node hash of the same bytes. Proof verification
for all three variants is one shared fold that recomputes the root from a
starting hash and an ordered list of (sibling, side) steps.

Built trees are immutable and safe for concurrent readers. SMT Insert and
MMR Append require single-writer discipline; verification of issued proofs
is pure, so proofs stay valid against the root captured when they were
generated.
*/
package merkle
