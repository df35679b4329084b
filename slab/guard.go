package slab

import (
	"fmt"
	"sync/atomic"
)

// Guard is a read handle on a stored value.
//
// While a guard is held its slot cannot be reclaimed: a concurrent Remove
// commits immediately but the value stays readable through the guard, and
// the slot only returns to the free list when the last guard is released.
// The guard pins the slot itself, not the Index, so it stays valid no matter
// what happens to the Index.
//
// A Guard is meant to be released by the goroutine that obtained it, and
// Value must not be called concurrently with Release.
type Guard[V any] struct {
	slab     *Slab[V]
	page     *page[V]
	off      uint32
	idx      Index
	released atomic.Bool
}

// Value returns the stored value. After Release it returns the zero value.
func (g *Guard[V]) Value() V {
	if g.released.Load() {
		var zero V
		return zero
	}
	return g.page.slots[g.off].value
}

// Index returns the index the guard was obtained with.
func (g *Guard[V]) Index() Index { return g.idx }

// Release drops the guard. If the value was removed while borrowed and this
// is the last guard, the slot is reclaimed on the calling goroutine (OnDrop
// runs here). Calling Release more than once is a no-op.
func (g *Guard[V]) Release() {
	if g.released.Swap(true) {
		return
	}
	g.slab.release(g.page, g.off)
}

// String implements fmt.Stringer for debugging.
func (g *Guard[V]) String() string {
	return fmt.Sprintf("Guard(%v: %v)", g.idx, g.Value())
}
