package merkle

import (
	"runtime"
	"sync"
)

// Layers smaller than this are hashed sequentially; goroutine handoff costs
// more than the hashing below it.
const parallelThreshold = 64

// BatchHasher fans independent hash computations out over a fixed number of
// workers. Subtree hashes within one layer do not depend on each other, so a
// layer can be split into contiguous chunks with a merge barrier at the end;
// the result is byte-identical to the sequential computation.
type BatchHasher struct {
	th         *TreeHasher
	maxWorkers int
}

// NewBatchHasher returns a BatchHasher with the given worker count
// (0 or less means one worker per CPU).
func NewBatchHasher(th *TreeHasher, workers int) *BatchHasher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchHasher{th: th, maxWorkers: workers}
}

// HashLeaves computes the domain-separated leaf hash of every item in
// parallel, preserving order.
func (bh *BatchHasher) HashLeaves(items [][]byte) [][]byte {
	out := make([][]byte, len(items))
	bh.run(len(items), func(i int) {
		out[i] = bh.th.HashLeaf(items[i])
	})
	return out
}

// hashLevel combines a layer pairwise into its parent layer, self-pairing a
// lone last element, with pairs distributed across workers.
func (bh *BatchHasher) hashLevel(level [][]byte) [][]byte {
	pairs := (len(level) + 1) / 2
	next := make([][]byte, pairs)
	bh.run(pairs, func(p int) {
		i := 2 * p
		if i+1 < len(level) {
			next[p] = bh.th.HashNode(level[i], level[i+1])
		} else {
			next[p] = bh.th.HashNode(level[i], level[i])
		}
	})
	return next
}

// run invokes fn for every index in [0, n) using up to maxWorkers
// goroutines over contiguous chunks, then waits for all of them.
func (bh *BatchHasher) run(n int, fn func(i int)) {
	workers := bh.maxWorkers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
