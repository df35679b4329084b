package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/IvanBrykalov/shardslab/slab"
)

// run registers the Prometheus adapter on the default registry, so it is
// exercised only once per test binary.
func TestRun_WritesReport(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.json")
	var stdout bytes.Buffer

	err := run([]string{
		"--duration", "100ms",
		"--workers", "4",
		"--preload", "500",
		"--shards", "2",
		"--http=",
		"--log-level", "error",
		"--out", out,
	}, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "ops=")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var rep report
	require.NoError(t, sonnet.Unmarshal(data, &rep))

	assert.Positive(t, rep.Ops)
	assert.Equal(t, rep.Hits+rep.Misses, rep.Reads)
	assert.EqualValues(t, 500+int64(rep.Inserts)-int64(rep.Removes)-int64(rep.Takes), rep.Live,
		"preloaded values are never removed")
}

func TestWorkload_RateLimited(t *testing.T) {
	t.Parallel()

	s, err := slab.New[uint64](slab.Options[uint64]{Shards: 1})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	cfg := config{Workers: 2, Reads: 50, Removes: 25, Rate: 200, Seed: 1}
	wl := newWorkload(cfg, s)
	require.NotNil(t, wl.limiter)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, wl.run(ctx))

	// 200 ops/s for 100ms plus the initial burst.
	assert.LessOrEqual(t, wl.c.ops.Load(), uint64(40))
	rep := wl.report(100 * time.Millisecond)
	assert.EqualValues(t, int64(rep.Inserts)-int64(rep.Removes)-int64(rep.Takes), rep.Live)
}

func TestWorkload_BoardKeepsIndexZero(t *testing.T) {
	t.Parallel()

	s, err := slab.New[uint64](slab.Options[uint64]{Shards: 1})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	wl := newWorkload(config{Workers: 1, Preload: 1}, s)
	_, ok := wl.published(0)
	require.False(t, ok, "an untouched slot is empty")

	require.NoError(t, wl.preload())
	idx, ok := wl.published(0)
	require.True(t, ok)
	assert.Equal(t, slab.Index(0), idx, "the first index of a one-shard slab is zero")

	g, ok := s.Get(idx)
	require.True(t, ok)
	assert.Equal(t, uint64(0), g.Value())
	g.Release()
}
