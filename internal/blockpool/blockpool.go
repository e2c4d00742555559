// Package blockpool implements the pool-of-pools (spec.md §4.2/§3's
// "Pool-of-pools (blockpool)"): a fixed per-chain block-size and
// nblock-per-subpool configuration that grows sub-pools on demand and
// hands out blocks round-robin across them, plus the process-wide
// garbage list that lets a sub-pool outlive its own destruction while
// any of its blocks are still referenced.
package blockpool

import (
	"sync"

	"github.com/jive-evlbi/chaind/internal/block"
)

// BlockPool hands out reference-counted blocks from a growing set of
// fixed-size sub-pools. The zero value is not usable; use New.
type BlockPool struct {
	blocksize int
	nblock    int

	mu      sync.Mutex
	subs    []*block.Pool
	cursor  int
	garbage *garbageList
}

// processGarbage is the single garbage list every BlockPool shares.
var processGarbage = newGarbageList()

// New creates a blockpool that allocates blocksize-byte blocks,
// nblock per sub-pool, growing by one sub-pool at a time as demand
// requires.
func New(blocksize, nblock int) *BlockPool {
	bp := &BlockPool{
		blocksize: blocksize,
		nblock:    nblock,
		garbage:   processGarbage,
	}
	bp.subs = append(bp.subs, block.NewPool(blocksize, nblock))
	return bp
}

// BlockSize returns the fixed block size this blockpool was configured
// with.
func (bp *BlockPool) BlockSize() int { return bp.blocksize }

// Get returns a block from the next sub-pool in round-robin order,
// growing the set of sub-pools if every existing one is exhausted.
func (bp *BlockPool) Get() *block.Block {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	n := len(bp.subs)
	for i := 0; i < n; i++ {
		idx := (bp.cursor + i) % n
		if b, ok := bp.subs[idx].Get(); ok {
			bp.cursor = (idx + 1) % n
			return b
		}
	}
	// Every sub-pool is exhausted: grow.
	sp := block.NewPool(bp.blocksize, bp.nblock)
	bp.subs = append(bp.subs, sp)
	b, ok := sp.Get()
	if !ok {
		// Cannot happen: a freshly allocated sub-pool has nblock free
		// slots and we are the only caller holding bp.mu.
		panic("blockpool: fresh sub-pool refused Get")
	}
	bp.cursor = 0
	return b
}

// NumSubPools reports how many sub-pools have been allocated so far.
func (bp *BlockPool) NumSubPools() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.subs)
}

// Shrink destroys every sub-pool that currently holds no live blocks,
// removing it from the round-robin set, and garbage-lists the rest so
// their last release reaps them later. It is meant to be called when a
// chain using this blockpool stops, to release memory promptly for the
// common case where nothing outlived the chain.
func (bp *BlockPool) Shrink() {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, sp := range bp.subs {
		if sp.Destroy() {
			continue // fully drained, free it by simply dropping the reference
		}
		bp.garbage.add(sp)
	}
	bp.subs = nil
	bp.cursor = 0
}

// GarbageListLen reports how many sub-pools are currently on the
// process-wide garbage list awaiting their last release (used by
// tests asserting S5's reap-on-next-sweep behavior).
func (bp *BlockPool) GarbageListLen() int {
	return bp.garbage.len()
}

// garbageList holds sub-pools whose destruction was deferred because
// some of their blocks were still live. It is swept — and its own
// entries reaped — every time a garbage-listed sub-pool's last block
// is released, matching spec.md §4.2's "garbage list protected by a
// single global mutex; only touched at pool create/destroy and on the
// slow path."
type garbageList struct {
	mu      sync.Mutex
	entries []*block.Pool
}

func newGarbageList() *garbageList {
	return &garbageList{}
}

func (g *garbageList) add(sp *block.Pool) {
	g.mu.Lock()
	g.entries = append(g.entries, sp)
	g.mu.Unlock()

	sp.SetDrainedCallback(func() {
		g.reap(sp)
	})
}

func (g *garbageList) reap(sp *block.Pool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entries {
		if e == sp {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return
		}
	}
}

func (g *garbageList) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
