package slab

import (
	"math"

	"github.com/IvanBrykalov/shardslab/internal/util"
)

// nullOffset terminates a page free list.
const nullOffset = math.MaxUint32

// page is a fixed-size block of slots with a lock-free free list.
//
// The free list is a Treiber stack threaded through the slots' next links.
// Its head word packs a 32-bit tag with the 32-bit head offset; every push
// and pop bumps the tag, so a pop that read a stale (head, next) pair cannot
// succeed after the same offset was popped and pushed back in between (ABA).
// Like generations, the tag wraps; a pop would have to stall across 2^32
// concurrent free-list operations on one page to be fooled.
type page[V any] struct {
	base  uint64 // address of slots[0] within the shard
	slots []slot[V]
	free  util.PaddedAtomicUint64
}

func packHead(tag, off uint32) uint64       { return uint64(tag)<<32 | uint64(off) }
func unpackHead(h uint64) (tag, off uint32) { return uint32(h >> 32), uint32(h) }

// newPage allocates a page whose free list initially holds every slot in
// ascending order.
func newPage[V any](base uint64, size int) *page[V] {
	p := &page[V]{
		base:  base,
		slots: make([]slot[V], size),
	}
	for i := 0; i < size-1; i++ {
		p.slots[i].next.Store(uint32(i + 1))
	}
	p.slots[size-1].next.Store(nullOffset)
	p.free.Store(packHead(0, 0))
	return p
}

// pop removes a free slot offset. The caller becomes the slot's exclusive
// owner until it publishes a value into it.
func (p *page[V]) pop() (uint32, bool) {
	for {
		h := p.free.Load()
		tag, off := unpackHead(h)
		if off == nullOffset {
			return 0, false
		}
		next := p.slots[off].next.Load()
		if p.free.CompareAndSwap(h, packHead(tag+1, next)) {
			return off, true
		}
	}
}

// push returns a reclaimed slot to the free list.
func (p *page[V]) push(off uint32) {
	for {
		h := p.free.Load()
		tag, head := unpackHead(h)
		p.slots[off].next.Store(head)
		if p.free.CompareAndSwap(h, packHead(tag+1, off)) {
			return
		}
	}
}
