// Package slab provides a sharded, lock-free slot allocator: it hands out
// stable Index values for inserted items, serves concurrent reads by index
// through reference-counted guards, and reuses slots once an item is removed
// and no reader still observes it.
//
// Design
//
//   - Concurrency: there is no lock anywhere. Each slot carries one atomic
//     lifecycle word (state, reader count, generation); every transition is
//     a single CAS on it, so two removals of the same index, a removal and a
//     reader, or a reader and a reclaimer are always linearized.
//
//   - Storage: the slab is split into shards (power of two, ≈ 2*GOMAXPROCS
//     by default). A shard is an append-only list of pages whose sizes
//     double from Options.InitialPageSize; pages are never moved or freed, so
//     an index decoded against a page is valid for the slab's lifetime.
//
//   - Free lists: every page threads a lock-free stack through its empty
//     slots. The stack head carries an ABA tag; slot generations protect the
//     indices themselves.
//
//   - Generations: reclaiming a slot advances its generation, and every
//     lookup compares it against the generation packed into the Index, so a
//     stale index fails instead of reaching the slot's next occupant. The
//     width is at least 24 bits; wraparound while a stale index is still in
//     use is assumed not to happen in practice, which is an assumption, not a
//     guarantee.
//
//   - Routing: Options.Router (package routing) picks the shard an insert
//     starts from. It only affects placement, never lookups.
//
//   - Guards: Get returns a Guard that pins the slot. Remove commits at once
//     and never blocks; if guards are outstanding the value stays readable
//     through them and the last Release reclaims the slot.
//
//   - Take: removes and returns the value without blocking. If the value is
//     borrowed, Take fails with ErrBusy and changes nothing; TakeWait retries
//     until a context deadline.
//
//   - Pool: a variant that clears values in place (Clearer) and reuses their
//     allocations instead of dropping them.
//
//   - Metrics: Options.Metrics receives Insert/Hit/Miss/Reclaim/Busy/Grow/
//     Exhausted events. There is no Len: any count of live values is stale
//     before it can be read.
//
// Basic usage
//
//	s, err := slab.New[string](slab.Options[string]{})
//	if err != nil {
//	    return err
//	}
//	idx, err := s.Insert("hello")
//	if err != nil {
//	    return err // slab.ErrExhausted
//	}
//	if g, ok := s.Get(idx); ok {
//	    fmt.Println(g.Value())
//	    g.Release()
//	}
//	s.Remove(idx)
//
// Taking a value back
//
//	v, err := s.Take(idx)
//	switch {
//	case errors.Is(err, slab.ErrBusy):
//	    // still borrowed; retry, or block with a deadline:
//	    v, err = s.TakeWait(ctx, idx)
//	case errors.Is(err, slab.ErrNotFound):
//	    // stale or already removed
//	}
//
// Single-threaded configuration
//
//	s, _ := slab.New[int](slab.Options[int]{Shards: 1, Router: routing.Fixed(0)})
//
// Exporting metrics (Prometheus adapter)
//
//	m := prom.New(nil, "app", "spans", nil) // implements slab.Metrics
//	s, _ := slab.New[*Span](slab.Options[*Span]{Metrics: m})
//
// Thread-safety & complexity
//
// All methods are safe for concurrent use. Get, Remove and Take are O(1) plus
// CAS retries bounded by competing progress. Insert is O(pages) in the worst
// case (scanning a full shard) and amortized O(1).
package slab
