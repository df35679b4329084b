package slab

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestSlab builds a slab and fails the test on invalid options.
func newTestSlab[V any](t testing.TB, opt Options[V]) *Slab[V] {
	t.Helper()
	s, err := New[V](opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// countingMetrics records every Metrics event.
type countingMetrics struct {
	inserts, hits, misses, reclaims, busy, grows, growSlots, exhausted atomic.Int64
}

func (m *countingMetrics) Insert()    { m.inserts.Add(1) }
func (m *countingMetrics) Hit()       { m.hits.Add(1) }
func (m *countingMetrics) Miss()      { m.misses.Add(1) }
func (m *countingMetrics) Reclaim()   { m.reclaims.Add(1) }
func (m *countingMetrics) Busy()      { m.busy.Add(1) }
func (m *countingMetrics) Exhausted() { m.exhausted.Add(1) }

func (m *countingMetrics) Grow(slots int) {
	m.grows.Add(1)
	m.growSlots.Add(int64(slots))
}

var _ Metrics = (*countingMetrics)(nil)

// dropCounter returns an OnDrop hook and the counter it increments.
func dropCounter[V any]() (func(V), *atomic.Int64) {
	var n atomic.Int64
	return func(V) { n.Add(1) }, &n
}

// mustInsert inserts v or fails the test.
func mustInsert[V any](t testing.TB, s *Slab[V], v V) Index {
	t.Helper()
	idx, err := s.Insert(v)
	require.NoError(t, err)
	return idx
}

// valueOf reads idx through a short-lived guard.
func valueOf[V any](s *Slab[V], idx Index) (V, bool) {
	g, ok := s.Get(idx)
	if !ok {
		var zero V
		return zero, false
	}
	defer g.Release()
	return g.Value(), true
}
