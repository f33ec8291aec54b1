package merkle

import (
	"encoding/binary"
	"sort"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Inserting the same key/value population in any order must commit to the
// same root, and every key must prove against it.
func TestFuzzSparseInsertionOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("TestFuzzSparseInsertionOrder skipped in short mode.")
	}
	th := sha256Hasher(t)
	f := fuzz.New().NilChance(0).NumElements(1, 64)

	for round := 0; round < 20; round++ {
		var entries map[uint16][]byte
		f.Fuzz(&entries)
		require.NotEmpty(t, entries)

		keys := make([]uint16, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		forward, err := NewSparse(th, 16, nil)
		require.NoError(t, err)
		reverse, err := NewSparse(th, 16, nil)
		require.NoError(t, err)

		keyBytes := func(k uint16) []byte {
			b := make([]byte, 2)
			binary.BigEndian.PutUint16(b, k)
			return b
		}
		for _, k := range keys {
			_, err := forward.Insert(keyBytes(k), entries[k])
			require.NoError(t, err)
		}
		for i := len(keys) - 1; i >= 0; i-- {
			_, err := reverse.Insert(keyBytes(keys[i]), entries[keys[i]])
			require.NoError(t, err)
		}
		require.Equal(t, forward.Root(), reverse.Root(), "round %d", round)

		root := forward.Root()
		for _, k := range keys {
			proof, err := forward.ProveKey(keyBytes(k))
			require.NoError(t, err)
			assert.True(t, proof.VerifyValue(th, 16, nil, root, keyBytes(k), entries[k]),
				"round %d key %04x", round, k)
		}
	}
}

// Random leaf sets round-trip through build, prove and verify, and the
// parallel build agrees with the sequential one.
func TestFuzzTreeRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("TestFuzzTreeRoundTrip skipped in short mode.")
	}
	th := sha256Hasher(t)
	f := fuzz.New().NilChance(0).NumElements(1, 128)

	for round := 0; round < 20; round++ {
		var items [][]byte
		f.Fuzz(&items)
		require.NotEmpty(t, items)

		leaves := NewBatchHasher(th, 0).HashLeaves(items)
		tree, err := BuildTree(th, leaves)
		require.NoError(t, err)
		par, err := BuildTree(th, leaves, Parallel(0))
		require.NoError(t, err)
		require.Equal(t, tree.Root(), par.Root(), "round %d", round)

		for i := range leaves {
			proof, err := tree.Prove(i)
			require.NoError(t, err)
			assert.True(t, proof.VerifyInclusion(th, leaves[i], tree.Root()),
				"round %d index %d", round, i)
		}
	}
}

// Appending the same random leaves yields the same roots; any reordering of
// distinct leaves changes the root.
func TestFuzzMountainDeterminism(t *testing.T) {
	if testing.Short() {
		t.Skip("TestFuzzMountainDeterminism skipped in short mode.")
	}
	th := sha256Hasher(t)
	f := fuzz.New().NilChance(0).NumElements(2, 64)

	for round := 0; round < 20; round++ {
		var items [][]byte
		f.Fuzz(&items)
		require.GreaterOrEqual(t, len(items), 2)

		a := NewMountainRange(th)
		b := NewMountainRange(th)
		for _, it := range items {
			a.Push(it)
			b.Push(it)
		}
		require.Equal(t, a.Root(), b.Root(), "round %d", round)

		if string(items[0]) != string(items[1]) {
			c := NewMountainRange(th)
			c.Push(items[1])
			c.Push(items[0])
			for _, it := range items[2:] {
				c.Push(it)
			}
			assert.NotEqual(t, a.Root(), c.Root(), "round %d", round)
		}
	}
}
