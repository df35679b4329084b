package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buffer struct {
	data    []byte
	cleared int
}

func (b *buffer) Clear() {
	b.data = b.data[:0]
	b.cleared++
}

func TestPool_ReusesClearedValue(t *testing.T) {
	t.Parallel()

	p, err := NewPool[buffer](Options[buffer]{Shards: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	idx, err := p.Create(func(b *buffer) { b.data = append(b.data, make([]byte, 128)...) })
	require.NoError(t, err)

	g, ok := p.Get(idx)
	require.True(t, ok)
	assert.Len(t, g.Value().data, 128)
	g.Release()

	require.True(t, p.Clear(idx))
	assert.False(t, p.Contains(idx))
	assert.False(t, p.Clear(idx))

	// The same slot comes back cleared, with its backing array intact.
	again, err := p.Create(func(b *buffer) {
		assert.Empty(t, b.data)
		assert.GreaterOrEqual(t, cap(b.data), 128)
		assert.Equal(t, 1, b.cleared)
		b.data = append(b.data, 'x')
	})
	require.NoError(t, err)
	assert.NotEqual(t, idx, again)

	g, ok = p.Get(again)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), g.Value().data)
	g.Release()
}

func TestPool_ClearDeferredByGuard(t *testing.T) {
	t.Parallel()

	var seen [][]byte
	p, err := NewPool[buffer](Options[buffer]{
		Shards: 1,
		OnDrop: func(b buffer) { seen = append(seen, append([]byte(nil), b.data...)) },
	})
	require.NoError(t, err)

	idx, err := p.Create(func(b *buffer) { b.data = []byte("pinned") })
	require.NoError(t, err)
	g, _ := p.Get(idx)

	require.True(t, p.Clear(idx))
	assert.Equal(t, "pinned", string(g.Value().data), "still readable while guarded")
	assert.Empty(t, seen)

	g.Release()
	require.Len(t, seen, 1)
	assert.Equal(t, "pinned", string(seen[0]), "OnDrop sees the value before it is cleared")

	require.NoError(t, p.Close())
	_, err = p.Create(nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_NilInit(t *testing.T) {
	t.Parallel()

	p, err := NewPool[buffer](Options[buffer]{})
	require.NoError(t, err)
	idx, err := p.Create(nil)
	require.NoError(t, err)
	assert.True(t, p.Contains(idx))
	require.NoError(t, p.Close())
	assert.False(t, p.Contains(idx))
}
