package slab

import "sync/atomic"

// state is the lifecycle stage of a slot.
type state uint64

const (
	stateEmpty    state = iota // on the free list (or being reclaimed)
	stateOccupied              // holds a live value
	stateRemoving              // removed, waiting for the last guard
)

// Lifecycle word layout (low to high):
//
//	ss rrrrrrrrrrrrrrrrrrrrrrrrrrrrrr gggggggggggggggggggggggggggggggg
//	│  └─ reader count (30 bits)      └─ generation (32 bits)
//	└─ state (2 bits)
//
// Keeping all three in one word means every transition validates the
// generation, the state and the reader count with a single CAS.
const (
	stateBits = 2
	refsBits  = 30
	refsShift = stateBits
	genShift  = stateBits + refsBits

	stateMask = 1<<stateBits - 1
	maxRefs   = 1<<refsBits - 1
	refOne    = 1 << refsShift
)

type lifecycle uint64

func makeLifecycle(gen uint32, refs uint64, st state) lifecycle {
	return lifecycle(uint64(gen)<<genShift | refs<<refsShift | uint64(st))
}

func (lc lifecycle) state() state   { return state(lc & stateMask) }
func (lc lifecycle) refs() uint64   { return uint64(lc>>refsShift) & maxRefs }
func (lc lifecycle) gen() uint32    { return uint32(lc >> genShift) }
func (lc lifecycle) readable() bool { return lc.state() == stateOccupied || lc.state() == stateRemoving }

// nextGen advances a generation modulo the layout's generation width.
func nextGen(g, mask uint32) uint32 { return (g + 1) & mask }

// slot is a single storage cell.
//
// value is plain memory: it is written only by the goroutine that owns the
// slot exclusively (the inserter after popping it from the free list, or the
// reclaimer after winning the transition to Empty) and read only by holders
// of a reference taken through lc. The atomics on lc order those accesses.
type slot[V any] struct {
	lc    atomic.Uint64
	next  atomic.Uint32 // free-list link; meaningful only while Empty
	value V
}

func (s *slot[V]) load() lifecycle { return lifecycle(s.lc.Load()) }

func (s *slot[V]) cas(old, new lifecycle) bool {
	return s.lc.CompareAndSwap(uint64(old), uint64(new))
}

// publish moves a freshly popped slot from Empty to Occupied and returns the
// generation the new value is issued under.
//
// Nothing else ever CASes an Empty slot with zero readers, so a failure here
// means the free list handed out a live slot.
func (s *slot[V]) publish() uint32 {
	lc := s.load()
	if lc.state() != stateEmpty || lc.refs() != 0 || !s.cas(lc, makeLifecycle(lc.gen(), 0, stateOccupied)) {
		panic("slab: slot popped from the free list is not empty")
	}
	return lc.gen()
}

// acquire takes a reader reference if the slot still holds a readable value
// of generation gen. The increment is a CAS on the whole word, so it can only
// land while generation and state still validate; a concurrent transition
// forces a re-read instead of an increment that would need rolling back.
func (s *slot[V]) acquire(gen uint32) bool {
	for {
		lc := s.load()
		if lc.gen() != gen || !lc.readable() || lc.refs() == maxRefs {
			return false
		}
		if s.cas(lc, lc+refOne) {
			return true
		}
	}
}

// acquireOccupied takes a reader reference on whatever value the slot holds,
// provided it is Occupied (not being removed). Used by iteration.
func (s *slot[V]) acquireOccupied() (uint32, bool) {
	for {
		lc := s.load()
		if lc.state() != stateOccupied || lc.refs() == maxRefs {
			return 0, false
		}
		if s.cas(lc, lc+refOne) {
			return lc.gen(), true
		}
	}
}

// release drops a reader reference. It reports true if this was the last
// reference of a Removing slot, in which case the caller now owns the slot
// and must reclaim it.
func (s *slot[V]) release(mask uint32) bool {
	for {
		lc := s.load()
		refs := lc.refs()
		if refs == 0 {
			panic("slab: slot released more times than it was acquired")
		}
		if refs == 1 && lc.state() == stateRemoving {
			if s.cas(lc, makeLifecycle(nextGen(lc.gen(), mask), 0, stateEmpty)) {
				return true
			}
			continue
		}
		if s.cas(lc, lc-refOne) {
			return false
		}
	}
}

// markRemoved commits the removal of the generation-gen value.
// removed is false if the value was already removed or gen is stale.
// reclaim is true when there were no readers: the slot went straight to
// Empty and the caller must reclaim it now. Otherwise it is Removing and the
// last guard reclaims it.
func (s *slot[V]) markRemoved(gen, mask uint32) (removed, reclaim bool) {
	for {
		lc := s.load()
		if lc.gen() != gen || lc.state() != stateOccupied {
			return false, false
		}
		if lc.refs() == 0 {
			if s.cas(lc, makeLifecycle(nextGen(gen, mask), 0, stateEmpty)) {
				return true, true
			}
			continue
		}
		if s.cas(lc, makeLifecycle(gen, lc.refs(), stateRemoving)) {
			return true, false
		}
	}
}

type takeResult int

const (
	takeAbsent takeResult = iota
	takeBusy
	takeOK
)

// take moves an unborrowed Occupied slot straight to Empty, handing the
// caller exclusive ownership of the value. A borrowed slot is left untouched.
func (s *slot[V]) take(gen, mask uint32) takeResult {
	for {
		lc := s.load()
		if lc.gen() != gen || lc.state() != stateOccupied {
			return takeAbsent
		}
		if lc.refs() > 0 {
			return takeBusy
		}
		if s.cas(lc, makeLifecycle(nextGen(gen, mask), 0, stateEmpty)) {
			return takeOK
		}
	}
}

// contains reports whether a Get with gen would currently succeed.
func (s *slot[V]) contains(gen uint32) bool {
	lc := s.load()
	return lc.gen() == gen && lc.readable()
}
