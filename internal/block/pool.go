package block

import (
	"sync"
	"sync/atomic"
)

// slackBytes is the trailing padding appended to every slot: spec.md
// §4.2 notes some downstream consumers (frame scanners, bit extractors)
// read a few bytes past the logical end of a block.
const slackBytes = 16

// Pool is a single sub-pool: a contiguous array of nblock slots of
// blocksize+slack bytes, plus a parallel array of atomic use-counts and
// a circular next-alloc cursor (spec.md §4.2). Get and release are
// lock-free, and so is Destroy; only the drained-callback bookkeeping
// (SetDrainedCallback and its firing) takes a mutex, on the cold path.
type Pool struct {
	blocksize int
	slotSize  int
	nblock    int
	buf       []byte
	useCounts []atomic.Int32
	cursor    atomic.Uint32

	live      atomic.Int32 // slots currently referenced
	destroyed atomic.Bool
	drainFired atomic.Bool // ensures onDrained fires at most once

	mu        sync.Mutex
	onDrained func() // set by blockpool when this pool is garbage-listed
}

// NewPool allocates a sub-pool of nblock slots, each blocksize bytes
// plus trailing slack.
func NewPool(blocksize, nblock int) *Pool {
	if blocksize <= 0 || nblock <= 0 {
		panic("block: blocksize and nblock must be positive")
	}
	slotSize := blocksize + slackBytes
	return &Pool{
		blocksize: blocksize,
		slotSize:  slotSize,
		nblock:    nblock,
		buf:       make([]byte, slotSize*nblock),
		useCounts: make([]atomic.Int32, nblock),
	}
}

// BlockSize returns the logical (non-slack) size of blocks this pool
// hands out.
func (p *Pool) BlockSize() int { return p.blocksize }

// NumBlocks returns the number of slots in this sub-pool.
func (p *Pool) NumBlocks() int { return p.nblock }

// Get scans use-counts starting at the cursor for a free slot, CASes it
// to one, and returns a block handle onto it. Reports false if a full
// cycle found no free slot (the caller, typically a blockpool, should
// then allocate a new sub-pool) or if the pool has been destroyed.
func (p *Pool) Get() (*Block, bool) {
	if p.destroyed.Load() {
		return nil, false
	}
	start := p.cursor.Add(1) - 1
	for i := 0; i < p.nblock; i++ {
		slot := int((start + uint32(i)) % uint32(p.nblock))
		if p.useCounts[slot].CompareAndSwap(0, 1) {
			p.live.Add(1)
			lo := slot * p.slotSize
			blk := newBlock(p.buf[lo:lo+p.blocksize:lo+p.slotSize], p, slot, &p.useCounts[slot])
			return blk, true
		}
	}
	return nil, false
}

// release implements Owner: invoked once a block's use-count reaches
// zero. If the pool has already been marked for destruction and this
// was its last live slot, the drained callback fires so the garbage
// list can reap it.
func (p *Pool) release(slot int) {
	if p.live.Add(-1) == 0 && p.destroyed.Load() {
		p.fireDrained()
	}
}

func (p *Pool) fireDrained() {
	p.mu.Lock()
	cb := p.onDrained
	p.mu.Unlock()
	if cb == nil {
		return
	}
	if p.drainFired.CompareAndSwap(false, true) {
		cb()
	}
}

// Destroy marks the pool for destruction. It returns true if the pool
// was fully drained (no live blocks) and can be freed immediately, or
// false if it must be placed on a garbage list until its last block is
// released — in which case the caller must install onDrained via
// SetDrainedCallback before any in-flight Release can race the check.
func (p *Pool) Destroy() (drained bool) {
	p.destroyed.Store(true)
	return p.live.Load() == 0
}

// SetDrainedCallback registers the function to invoke once a
// garbage-listed pool's last block is released. It re-checks drain
// state after installing the callback, in case the last release raced
// ahead of Destroy/SetDrainedCallback.
func (p *Pool) SetDrainedCallback(cb func()) {
	p.mu.Lock()
	p.onDrained = cb
	p.mu.Unlock()
	if p.live.Load() == 0 && p.destroyed.Load() {
		p.fireDrained()
	}
}

// Live reports the number of slots currently referenced.
func (p *Pool) Live() int32 { return p.live.Load() }
