package slab

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGenMask = 1<<24 - 1

func TestLifecycle_Fields(t *testing.T) {
	t.Parallel()

	lc := makeLifecycle(0xdeadbeef, 12345, stateRemoving)
	assert.Equal(t, uint32(0xdeadbeef), lc.gen())
	assert.Equal(t, uint64(12345), lc.refs())
	assert.Equal(t, stateRemoving, lc.state())
	assert.True(t, lc.readable())

	assert.False(t, makeLifecycle(1, 0, stateEmpty).readable())
	assert.Equal(t, uint32(0), nextGen(testGenMask, testGenMask), "generation wraps at the layout width")
}

func TestSlot_Transitions(t *testing.T) {
	t.Parallel()

	var s slot[int]
	gen := s.publish()
	require.Equal(t, uint32(0), gen)

	require.True(t, s.acquire(gen))
	assert.False(t, s.acquire(gen+1), "wrong generation")
	assert.Equal(t, takeBusy, s.take(gen, testGenMask))

	removed, reclaim := s.markRemoved(gen, testGenMask)
	assert.True(t, removed)
	assert.False(t, reclaim, "a reader is still holding the slot")
	assert.Equal(t, stateRemoving, s.load().state())

	again, _ := s.markRemoved(gen, testGenMask)
	assert.False(t, again, "double remove")
	assert.Equal(t, takeAbsent, s.take(gen, testGenMask))
	assert.True(t, s.contains(gen))

	assert.True(t, s.release(testGenMask), "last reader reclaims")
	lc := s.load()
	assert.Equal(t, stateEmpty, lc.state())
	assert.Equal(t, gen+1, lc.gen())
	assert.False(t, s.contains(gen))
	assert.False(t, s.acquire(gen))
}

func TestSlot_RemoveWithoutReaders(t *testing.T) {
	t.Parallel()

	var s slot[int]
	gen := s.publish()
	removed, reclaim := s.markRemoved(gen, testGenMask)
	assert.True(t, removed)
	assert.True(t, reclaim)
	assert.Equal(t, makeLifecycle(gen+1, 0, stateEmpty), s.load())
}

func TestSlot_PublishPanicsOnLiveSlot(t *testing.T) {
	t.Parallel()

	var s slot[int]
	s.publish()
	assert.Panics(t, func() { s.publish() })
}

func TestSlot_ReleaseWithoutAcquirePanics(t *testing.T) {
	t.Parallel()

	var s slot[int]
	s.publish()
	assert.Panics(t, func() { s.release(testGenMask) })
}

// Many removers and readers race on one slot; exactly one remover commits
// and exactly one goroutine ends up owning the reclaim.
func TestSlot_ConcurrentRemoveSingleReclaim(t *testing.T) {
	t.Parallel()

	for round := 0; round < 200; round++ {
		var s slot[int]
		gen := s.publish()

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			removes  int
			reclaims int
		)
		for g := 0; g < 8; g++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				removed, reclaim := s.markRemoved(gen, testGenMask)
				mu.Lock()
				if removed {
					removes++
				}
				if reclaim {
					reclaims++
				}
				mu.Unlock()
			}()
			go func() {
				defer wg.Done()
				if !s.acquire(gen) {
					return
				}
				if s.release(testGenMask) {
					mu.Lock()
					reclaims++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, removes, "round %d", round)
		require.Equal(t, 1, reclaims, "round %d", round)
		require.Equal(t, makeLifecycle(gen+1, 0, stateEmpty), s.load())
	}
}

// A slot whose reader count is saturated refuses further references; Get
// reports that as a miss until a reader leaves.
func TestSlot_ReaderCountSaturation(t *testing.T) {
	t.Parallel()

	var s slot[int]
	gen := s.publish()
	s.lc.Store(uint64(makeLifecycle(gen, maxRefs, stateOccupied)))

	assert.False(t, s.acquire(gen))
	_, ok := s.acquireOccupied()
	assert.False(t, ok)
	assert.Equal(t, uint64(maxRefs), s.load().refs(), "a refused acquire changes nothing")

	assert.False(t, s.release(testGenMask))
	assert.True(t, s.acquire(gen), "one reader left, so there is room again")
}

func TestSlab_GetMissesOnSaturatedSlot(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	s := newTestSlab(t, Options[int]{Shards: 1, Metrics: m})
	idx := mustInsert(t, s, 1)

	pg, off, gen, ok := s.lookup(idx)
	require.True(t, ok)
	sl := &pg.slots[off]
	sl.lc.Store(uint64(makeLifecycle(gen, maxRefs, stateOccupied)))

	_, ok = s.Get(idx)
	assert.False(t, ok)
	assert.EqualValues(t, 1, m.misses.Load())
	assert.Zero(t, m.hits.Load())

	s.release(pg, off)
	g, ok := s.Get(idx)
	require.True(t, ok)
	assert.Equal(t, 1, g.Value())
	assert.EqualValues(t, 1, m.hits.Load())

	// Put the count back to zero so Close can reclaim the slot.
	g.Release()
	sl.lc.Store(uint64(makeLifecycle(gen, 0, stateOccupied)))
}
