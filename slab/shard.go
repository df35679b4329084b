package slab

import (
	"sync/atomic"

	"github.com/IvanBrykalov/shardslab/internal/util"
)

// shard is an independent partition of the slab: an append-only sequence of
// pages whose sizes double from InitialPageSize.
//
// Page pointers are installed once (nil -> page) and never replaced, so an
// index decoded against a page stays valid for the slab's lifetime and
// readers never lock the sequence. Pages are grown in order: page i+1 is only
// allocated by an inserter that found page i full, so allocated pages always
// form a prefix.
type shard[V any] struct {
	id    int
	pages []atomic.Pointer[page[V]]

	// keep neighbouring shards' page tables off each other's cache lines
	_ util.CacheLinePad
}

func newShard[V any](id, maxPages int) *shard[V] {
	return &shard[V]{
		id:    id,
		pages: make([]atomic.Pointer[page[V]], maxPages),
	}
}

// page returns page n, or nil if n is out of range or not yet allocated.
func (sh *shard[V]) page(n int) *page[V] {
	if n < 0 || n >= len(sh.pages) {
		return nil
	}
	return sh.pages[n].Load()
}

// alloc pops a free slot from the first page that has one, growing the shard
// by a page when every allocated page is full. ok is false when all
// MaxPages pages are allocated and full.
func (sh *shard[V]) alloc(s *Slab[V]) (pg *page[V], off uint32, ok bool) {
	for n := range sh.pages {
		pg = sh.pages[n].Load()
		if pg == nil {
			pg = sh.grow(s, n)
		}
		if off, ok = pg.pop(); ok {
			return pg, off, true
		}
	}
	return nil, 0, false
}

// grow installs page n. Concurrent growers race on a CAS; losers drop their
// allocation and use the winner's page.
func (sh *shard[V]) grow(s *Slab[V], n int) *page[V] {
	size := s.layout.pageSize(n)
	pg := newPage[V](s.layout.pageBase(n), size)
	if !sh.pages[n].CompareAndSwap(nil, pg) {
		return sh.pages[n].Load()
	}
	s.opt.Metrics.Grow(size)
	s.log.Debug("slab: page allocated", "shard", sh.id, "page", n, "slots", size)
	return pg
}
