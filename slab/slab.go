package slab

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/shardslab/internal/util"
	"github.com/IvanBrykalov/shardslab/routing"
)

// Slab is a sharded, lock-free slot allocator keyed by Index.
// All methods are safe for concurrent use by multiple goroutines.
type Slab[V any] struct {
	shards []*shard[V]
	layout layout
	router routing.Router
	log    *slog.Logger
	closed atomic.Bool

	opt Options[V]

	// reset clears a reclaimed value in place before its slot is reused.
	reset func(*V)
}

// New constructs a slab with the provided Options.
// It fails with an error wrapping ErrInvalidOptions if the options are out
// of range or the resulting index layout leaves too few generation bits.
func New[V any](opt Options[V]) (*Slab[V], error) {
	return newSlab(opt, func(v *V) {
		var zero V
		*v = zero
	})
}

func newSlab[V any](opt Options[V], reset func(*V)) (*Slab[V], error) {
	opt, err := opt.withDefaults()
	if err != nil {
		return nil, err
	}
	l, err := newLayout(opt.InitialPageSize, opt.MaxPages, opt.Shards, opt.ReservedBits)
	if err != nil {
		return nil, err
	}

	shards := make([]*shard[V], opt.Shards)
	for i := range shards {
		shards[i] = newShard[V](i, opt.MaxPages)
	}
	return &Slab[V]{
		shards: shards,
		layout: l,
		router: opt.Router,
		log:    opt.Logger,
		opt:    opt,
		reset:  reset,
	}, nil
}

// ---- public API ----

// Insert stores v and returns its Index.
//
// The router picks the starting shard; if that shard is full the others are
// tried in turn. Insert never waits on guards. It fails with ErrExhausted
// when every shard is full at MaxPages, and with ErrClosed after Close.
func (s *Slab[V]) Insert(v V) (Index, error) {
	return s.create(func(p *V) { *p = v })
}

// Get returns a guard on the value stored under idx.
// ok is false if idx is stale, was never issued, or is malformed; these
// cases are indistinguishable.
//
// A value that has been removed but is still borrowed remains readable
// through Get until its last guard is released.
// The guard must be released exactly once (further calls are no-ops).
func (s *Slab[V]) Get(idx Index) (*Guard[V], bool) {
	pg, off, gen, ok := s.lookup(idx)
	if !ok || !pg.slots[off].acquire(gen) {
		s.opt.Metrics.Miss()
		return nil, false
	}
	s.opt.Metrics.Hit()
	return &Guard[V]{slab: s, page: pg, off: off, idx: idx}, true
}

// Contains reports whether Get(idx) would currently succeed.
func (s *Slab[V]) Contains(idx Index) bool {
	pg, off, gen, ok := s.lookup(idx)
	return ok && pg.slots[off].contains(gen)
}

// Remove removes the value stored under idx.
//
// It returns true once the removal is committed and false if idx is stale,
// absent or already removed. With no outstanding guards the slot is reclaimed
// immediately; otherwise reclamation happens when the last guard is released.
// Remove never blocks.
func (s *Slab[V]) Remove(idx Index) bool {
	pg, off, gen, ok := s.lookup(idx)
	if !ok {
		return false
	}
	removed, reclaim := pg.slots[off].markRemoved(gen, s.layout.genMask())
	if reclaim {
		s.reclaim(pg, off, true)
	}
	return removed
}

// Take removes the value stored under idx and returns it.
//
// Take never blocks. If guards on the value are outstanding it returns
// ErrBusy and leaves the value in place, still readable and removable;
// the caller may retry (TakeWait does so until a deadline). A stale, absent
// or already removed idx yields ErrNotFound. After Close, ErrClosed.
func (s *Slab[V]) Take(idx Index) (V, error) {
	var zero V
	if s.closed.Load() {
		return zero, ErrClosed
	}
	pg, off, gen, ok := s.lookup(idx)
	if !ok {
		return zero, ErrNotFound
	}
	switch pg.slots[off].take(gen, s.layout.genMask()) {
	case takeOK:
		v := pg.slots[off].value
		s.reclaim(pg, off, false)
		return v, nil
	case takeBusy:
		s.opt.Metrics.Busy()
		return zero, ErrBusy
	default:
		return zero, ErrNotFound
	}
}

// Backoff bounds for TakeWait.
const (
	takeWaitSpins      = 64
	takeWaitMinBackoff = 10 * time.Microsecond
	takeWaitMaxBackoff = time.Millisecond
)

// TakeWait is the blocking variant of Take: while guards are outstanding it
// retries with bounded exponential backoff until the value can be taken, the
// index becomes absent (ErrNotFound), or ctx is done (ctx.Err()).
//
// The removal is not committed while waiting: on cancellation the value is
// still stored under idx. New guards may keep arriving while TakeWait waits,
// so a ctx deadline is the only bound on how long it blocks.
func (s *Slab[V]) TakeWait(ctx context.Context, idx Index) (V, error) {
	var zero V
	backoff := takeWaitMinBackoff

	for attempt := 0; ; attempt++ {
		v, err := s.Take(idx)
		if !errors.Is(err, ErrBusy) {
			return v, err
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if attempt < takeWaitSpins {
			runtime.Gosched()
			continue
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
		backoff = min(2*backoff, takeWaitMaxBackoff)
	}
}

// All returns a weakly consistent iterator over stored values, in no
// particular order.
//
// Each value is read under a temporary reference that is dropped before
// yield runs, so the loop body may freely Get, Remove or Take the index it
// is given. Values inserted or removed during iteration may or may not be
// visited; values already being removed are skipped.
func (s *Slab[V]) All() iter.Seq2[Index, V] {
	return func(yield func(Index, V) bool) {
		for _, sh := range s.shards {
			for n := range sh.pages {
				pg := sh.pages[n].Load()
				if pg == nil {
					break // pages are allocated in order
				}
				for i := range pg.slots {
					off := uint32(i)
					gen, ok := pg.slots[off].acquireOccupied()
					if !ok {
						continue
					}
					v := pg.slots[off].value
					s.release(pg, off)
					if !yield(s.layout.pack(sh.id, pg.base+uint64(off), gen), v) {
						return
					}
				}
			}
		}
	}
}

// Close marks the slab closed and removes every stored value. Values with
// outstanding guards are dropped when their last guard is released.
// Afterwards Insert and Take return ErrClosed; Get, Remove and guard
// releases keep working.
//
// Close is idempotent. Inserts racing with Close may survive it.
func (s *Slab[V]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	removed := 0
	for idx := range s.All() {
		if s.Remove(idx) {
			removed++
		}
	}
	s.log.Info("slab: closed", "removed", removed)
	return nil
}

// ---- helpers ----

// create pops a free slot, lets init write the value in place and publishes
// it. Pool uses init to rebuild a retained value; Insert just assigns.
func (s *Slab[V]) create(init func(*V)) (Index, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	n := len(s.shards)
	first := util.ShardIndex(s.router.Route(n), n)
	for i := 0; i < n; i++ {
		sh := s.shards[(first+i)%n]
		pg, off, ok := sh.alloc(s)
		if !ok {
			continue
		}
		sl := &pg.slots[off]
		init(&sl.value)
		gen := sl.publish()
		s.opt.Metrics.Insert()
		return s.layout.pack(sh.id, pg.base+uint64(off), gen), nil
	}

	s.opt.Metrics.Exhausted()
	s.log.Warn("slab: exhausted", "shards", n, "max_pages", s.layout.maxPages)
	return 0, ErrExhausted
}

// lookup decodes idx to its page, slot offset and generation.
// ok is false for malformed indices and for shards, pages or offsets that
// do not exist.
func (s *Slab[V]) lookup(idx Index) (pg *page[V], off uint32, gen uint32, ok bool) {
	shardID, addr, gen, ok := s.layout.unpack(idx)
	if !ok || shardID >= len(s.shards) {
		return nil, 0, 0, false
	}
	n, poff := s.layout.pageOf(addr)
	pg = s.shards[shardID].page(n)
	if pg == nil || poff >= uint64(len(pg.slots)) {
		return nil, 0, 0, false
	}
	return pg, uint32(poff), gen, true
}

// release drops one reference on a slot and reclaims it if that was the
// last reference of a removed value.
func (s *Slab[V]) release(pg *page[V], off uint32) {
	if pg.slots[off].release(s.layout.genMask()) {
		s.reclaim(pg, off, true)
	}
}

// reclaim clears a slot the caller exclusively owns (its lifecycle already
// moved to Empty with the next generation) and returns it to the free list.
// drop reports whether the value is being discarded rather than handed to a
// Take caller.
func (s *Slab[V]) reclaim(pg *page[V], off uint32, drop bool) {
	sl := &pg.slots[off]
	if drop && s.opt.OnDrop != nil {
		s.opt.OnDrop(sl.value)
	}
	s.reset(&sl.value)
	pg.push(off)
	s.opt.Metrics.Reclaim()
}
