package slab

// Clearer is the constraint for pooled values: a pointer to T whose Clear
// method resets the value while keeping its allocations (buffers, maps,
// slices) for the next occupant.
type Clearer[T any] interface {
	*T
	Clear()
}

// Pool is a slab whose slots keep their values across reuse.
//
// A Slab drops a removed value (the slot is zeroed). A Pool instead calls
// Clear on it in place and hands the same, already allocated value to the
// next Create on that slot, which avoids re-allocating per-item storage.
// Guards, generations, sharding and deferred reclamation behave exactly as
// in Slab. There is no Take: values never leave the pool.
type Pool[T any, PT Clearer[T]] struct {
	s *Slab[T]
}

// NewPool constructs a pool with the provided Options.
// OnDrop, if set, sees each value right before it is cleared.
func NewPool[T any, PT Clearer[T]](opt Options[T]) (*Pool[T, PT], error) {
	s, err := newSlab(opt, func(v *T) { PT(v).Clear() })
	if err != nil {
		return nil, err
	}
	return &Pool[T, PT]{s: s}, nil
}

// Create claims a slot and lets init fill in its value, which is either
// fresh (zero) or a previously cleared one. init may be nil.
// Errors are those of Slab.Insert.
func (p *Pool[T, PT]) Create(init func(PT)) (Index, error) {
	return p.s.create(func(v *T) {
		if init != nil {
			init(PT(v))
		}
	})
}

// Get returns a guard on the value stored under idx; see Slab.Get.
func (p *Pool[T, PT]) Get(idx Index) (*Guard[T], bool) { return p.s.Get(idx) }

// Contains reports whether Get(idx) would currently succeed.
func (p *Pool[T, PT]) Contains(idx Index) bool { return p.s.Contains(idx) }

// Clear marks the value under idx for clearing and returns true if it was
// present. The value stays readable through outstanding guards; it is
// cleared and its slot made available once the last guard is released.
func (p *Pool[T, PT]) Clear(idx Index) bool { return p.s.Remove(idx) }

// Close clears every value and rejects further Creates.
func (p *Pool[T, PT]) Close() error { return p.s.Close() }
