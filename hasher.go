package merkle

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"
)

// Domain separation prefixes. A leaf digest and a node digest over the same
// bytes can never collide because the first hashed byte differs.
const (
	LeafPrefix = 0
	NodePrefix = 1
)

// Names of the pre-registered hash engines.
const (
	EngineSHA256  = "SHA256"
	EngineSHA3256 = "SHA3-256"
)

// TreeHasher computes the domain-separated hashes all tree variants are
// built from. Hash state is drawn from a pool per call, so a single
// TreeHasher is safe for concurrent use.
type TreeHasher struct {
	newHash func() hash.Hash
	size    int
	pool    sync.Pool
}

// NewTreeHasher returns a TreeHasher over the given base hash constructor.
func NewTreeHasher(newHash func() hash.Hash) *TreeHasher {
	th := &TreeHasher{
		newHash: newHash,
		size:    newHash().Size(),
	}
	th.pool.New = func() interface{} {
		return newHash()
	}
	return th
}

// Size returns the digest width in bytes. Every hash handled by the tree
// variants has exactly this length.
func (th *TreeHasher) Size() int {
	return th.size
}

// HashLeaf computes H(LeafPrefix || data).
func (th *TreeHasher) HashLeaf(data []byte) []byte {
	h := th.pool.Get().(hash.Hash)
	defer th.pool.Put(h)
	h.Reset()

	// a single Write of one prefixed buffer is faster than several small
	// writes on the underlying hash
	buf := make([]byte, 0, 1+len(data))
	buf = append(buf, LeafPrefix)
	buf = append(buf, data...)
	h.Write(buf)
	return h.Sum(nil)
}

// HashNode computes H(NodePrefix || left || right). The operand order is
// part of the commitment: swapping children changes the digest.
func (th *TreeHasher) HashNode(left, right []byte) []byte {
	h := th.pool.Get().(hash.Hash)
	defer th.pool.Put(h)
	h.Reset()

	buf := make([]byte, 0, 1+len(left)+len(right))
	buf = append(buf, NodePrefix)
	buf = append(buf, left...)
	buf = append(buf, right...)
	h.Write(buf)
	return h.Sum(nil)
}

// EmptyRoot returns the commitment to zero leaves: the bare digest of the
// empty string.
func (th *TreeHasher) EmptyRoot() []byte {
	h := th.pool.Get().(hash.Hash)
	defer th.pool.Put(h)
	h.Reset()
	return h.Sum(nil)
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]func() hash.Hash)
)

// RegisterEngine makes a base hash constructor available under a name.
// It panics if the name is already taken.
func RegisterEngine(name string, newHash func() hash.Hash) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if _, ok := engines[name]; ok {
		panic(fmt.Sprintf("merkle: RegisterEngine(%q) already registered", name))
	}
	engines[name] = newHash
}

// Engine returns a TreeHasher over the named registered engine.
func Engine(name string) (*TreeHasher, error) {
	enginesMu.RLock()
	newHash, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("merkle: unknown hash engine %q", name)
	}
	return NewTreeHasher(newHash), nil
}

func init() {
	RegisterEngine(EngineSHA256, sha256.New)
	RegisterEngine(EngineSHA3256, sha3.New256)
}
