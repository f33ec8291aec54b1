package merkle

import (
	"bytes"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hasher(t *testing.T) *TreeHasher {
	t.Helper()
	th, err := Engine(EngineSHA256)
	require.NoError(t, err)
	return th
}

func TestHashLeafDomainSeparation(t *testing.T) {
	th := sha256Hasher(t)
	data := []byte("a blockchain is a chain of blocks")

	plain := sha256.Sum256(data)
	assert.NotEqual(t, plain[:], th.HashLeaf(data),
		"leaf hashing must not degenerate to the bare hash")

	left := th.HashLeaf([]byte("l"))
	right := th.HashLeaf([]byte("r"))
	concat := append(append([]byte{}, left...), right...)
	assert.NotEqual(t, th.HashLeaf(concat), th.HashNode(left, right),
		"a leaf over concatenated child hashes must not collide with the node hash")
}

func TestHashNodeOrderSensitive(t *testing.T) {
	th := sha256Hasher(t)
	a := th.HashLeaf([]byte("a"))
	b := th.HashLeaf([]byte("b"))
	assert.NotEqual(t, th.HashNode(a, b), th.HashNode(b, a))
}

func TestHashSizes(t *testing.T) {
	tests := []struct {
		engine string
		size   int
	}{
		{EngineSHA256, 32},
		{EngineSHA3256, 32},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			th, err := Engine(tt.engine)
			require.NoError(t, err)
			require.Equal(t, tt.size, th.Size())
			require.Len(t, th.HashLeaf([]byte("x")), tt.size)
			require.Len(t, th.HashNode(th.HashLeaf(nil), th.HashLeaf(nil)), tt.size)
			require.Len(t, th.EmptyRoot(), tt.size)
		})
	}
}

func TestEmptyRoot(t *testing.T) {
	th := sha256Hasher(t)
	want := sha256.Sum256(nil)
	require.Equal(t, want[:], th.EmptyRoot())
}

func TestEnginesDiffer(t *testing.T) {
	s2 := sha256Hasher(t)
	s3, err := Engine(EngineSHA3256)
	require.NoError(t, err)
	assert.NotEqual(t, s2.HashLeaf([]byte("x")), s3.HashLeaf([]byte("x")))
}

func TestEngineUnknown(t *testing.T) {
	_, err := Engine("BLAKE-OF-NOWHERE")
	require.Error(t, err)
}

func TestRegisterEngineTwicePanics(t *testing.T) {
	RegisterEngine("test-dup-engine", sha256.New)
	require.Panics(t, func() {
		RegisterEngine("test-dup-engine", sha256.New)
	})
}

func TestTreeHasherConcurrent(t *testing.T) {
	th := sha256Hasher(t)
	data := []byte("concurrent")
	wantLeaf := th.HashLeaf(data)
	wantNode := th.HashNode(wantLeaf, wantLeaf)

	var wg sync.WaitGroup
	errc := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if !bytes.Equal(th.HashLeaf(data), wantLeaf) ||
					!bytes.Equal(th.HashNode(wantLeaf, wantLeaf), wantNode) {
					errc <- assert.AnError
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errc)
	require.Empty(t, errc, "concurrent hashing produced divergent digests")
}
