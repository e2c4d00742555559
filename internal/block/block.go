// Package block implements the reference-counted buffer handle that is
// the atomic data unit of transport between chain steps: a Block is a
// {base, length, use_count} view over a range inside a pool-owned
// buffer.
package block

import (
	"sync/atomic"
)

// Owner is the minimal contract a Block needs from the pool (or
// sub-pool) that allocated it: release notification on refcount zero.
type Owner interface {
	// release is invoked exactly once, when a block's use-count drops to
	// zero, so the owner can mark its slot free or sweep its garbage
	// list.
	release(slot int)
}

// Block is a reference-counted view over a byte range inside a pool's
// backing buffer. The zero value is not usable; obtain one from a Pool.
type Block struct {
	buf      []byte // the full sub-pool slot, including the 16-byte slack
	base     int    // offset of this handle's view within buf
	length   int    // length of this handle's view
	useCount *atomic.Int32
	owner    Owner
	slot     int
}

// newBlock constructs the first handle onto a freshly allocated slot,
// taking exactly one reference as spec.md §3 requires.
func newBlock(buf []byte, owner Owner, slot int, useCount *atomic.Int32) *Block {
	useCount.Store(1)
	return &Block{
		buf:      buf,
		base:     0,
		length:   len(buf),
		useCount: useCount,
		owner:    owner,
		slot:     slot,
	}
}

// Bytes returns the handle's view onto the underlying buffer. Callers
// must not retain the slice past Release.
func (b *Block) Bytes() []byte { return b.buf[b.base : b.base+b.length] }

// Len returns the handle's view length.
func (b *Block) Len() int { return b.length }

// UseCount returns the current number of live references sharing this
// block's underlying slot (invariant I2).
func (b *Block) UseCount() int32 { return b.useCount.Load() }

// Retain adds one reference and returns a new handle sharing the same
// use-count, so callers that fan a block out to multiple consumers
// don't need to reason about when the original handle is dropped.
func (b *Block) Retain() *Block {
	b.useCount.Add(1)
	return &Block{
		buf:      b.buf,
		base:     b.base,
		length:   b.length,
		useCount: b.useCount,
		owner:    b.owner,
		slot:     b.slot,
	}
}

// Sub returns a new handle onto buf[offset:offset+length] that shares
// this block's use-count (spec.md §3's sub(offset,len)). It takes its
// own reference against the shared use-count, so the caller's handle
// and Sub's result must each be released independently; a caller done
// with its own handle immediately after calling Sub should Release it.
func (b *Block) Sub(offset, length int) *Block {
	if offset < 0 || length < 0 || offset+length > b.length {
		panic("block: Sub out of range")
	}
	b.useCount.Add(1)
	return &Block{
		buf:      b.buf,
		base:     b.base + offset,
		length:   length,
		useCount: b.useCount,
		owner:    b.owner,
		slot:     b.slot,
	}
}

// Release decrements the use-count; when it reaches zero the owning
// pool is notified so it can mark the slot free (or, for a
// garbage-listed sub-pool, reap the slot's memory).
func (b *Block) Release() {
	if b.useCount.Add(-1) == 0 {
		b.owner.release(b.slot)
	}
}
