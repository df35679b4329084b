package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/shardslab/slab"
)

func TestAdapter_CountsSlabEvents(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "test", "slab", prometheus.Labels{"slab": "ints"})

	s, err := slab.New[int](slab.Options[int]{Shards: 1, InitialPageSize: 1, MaxPages: 2, Metrics: a})
	require.NoError(t, err)

	idx, err := s.Insert(1)
	require.NoError(t, err)
	_, _ = s.Insert(2)
	_, _ = s.Insert(3)
	_, err = s.Insert(4)
	require.ErrorIs(t, err, slab.ErrExhausted)

	g, ok := s.Get(idx)
	require.True(t, ok)
	_, err = s.Take(idx)
	require.ErrorIs(t, err, slab.ErrBusy)
	g.Release()
	_, ok = s.Get(idx + 1<<40)
	require.False(t, ok)
	require.True(t, s.Remove(idx))

	got := gather(t, reg)
	want := map[string]float64{
		"test_slab_inserts_total":         3,
		"test_slab_lookups_total":         2, // one hit, one miss
		"test_slab_reclaims_total":        1,
		"test_slab_take_busy_total":       1,
		"test_slab_exhausted_total":       1,
		"test_slab_pages_allocated_total": 2,
		"test_slab_allocated_slots_total": 3,
	}
	assert.Equal(t, want, got)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg, "dup", "slab", prometheus.Labels{"slab": "first"})
	assert.Panics(t, func() { New(reg, "dup", "slab", prometheus.Labels{"slab": "first"}) })
	assert.NotPanics(t, func() { New(reg, "dup", "slab", prometheus.Labels{"slab": "second"}) })
}

// gather sums every counter family's samples by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64, len(mfs))
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	return out
}
