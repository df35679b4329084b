package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/shardslab/slab"
)

// boardSize is the number of published indices workers read from.
// Entries hold index+1 so that zero means empty: Index(0) is a valid index.
const boardSize = 1 << 16

type counters struct {
	ops, reads, hits, misses      atomic.Uint64
	inserts, removes, takes, busy atomic.Uint64
	exhausted                     atomic.Uint64
}

// workload drives a slab with a randomized mix of operations.
//
// Every worker owns the indices it inserts and is the only one to Remove or
// Take them. Reads go through a shared board of published indices, so they
// hit values owned by any worker, including ones being removed concurrently.
type workload struct {
	cfg     config
	s       *slab.Slab[uint64]
	board   []atomic.Uint64
	limiter *rate.Limiter // nil => unlimited
	c       counters
}

func newWorkload(cfg config, s *slab.Slab[uint64]) *workload {
	wl := &workload{
		cfg:   cfg,
		s:     s,
		board: make([]atomic.Uint64, boardSize),
	}
	if cfg.Rate > 0 {
		wl.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(1, int(cfg.Rate/100)))
	}
	return wl
}

// preload inserts cfg.Preload values and publishes them on the board.
// Preloaded values have no owner and are only read.
func (wl *workload) preload() error {
	for i := 0; i < wl.cfg.Preload; i++ {
		idx, err := wl.s.Insert(uint64(i))
		if err != nil {
			return fmt.Errorf("preload %d: %w", i, err)
		}
		wl.publish(i%boardSize, idx)
	}
	return nil
}

// run starts the workers and waits until ctx is done.
func (wl *workload) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < wl.cfg.Workers; w++ {
		g.Go(func() error { return wl.worker(ctx, w) })
	}
	return g.Wait()
}

func (wl *workload) worker(ctx context.Context, id int) error {
	// Each worker gets its own RNG (rand.Rand is NOT goroutine-safe).
	r := rand.New(rand.NewPCG(wl.cfg.Seed, uint64(id)*9973))
	var own []slab.Index

	removeCut := wl.cfg.Reads + wl.cfg.Removes
	takeCut := removeCut + wl.cfg.Takes

	for ctx.Err() == nil {
		if wl.limiter != nil {
			// Fails once the next token lies past the deadline.
			if err := wl.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		wl.c.ops.Add(1)

		var err error
		switch p := r.IntN(100); {
		case p < wl.cfg.Reads:
			wl.read(r)
		case p < removeCut && len(own) > 0:
			own = wl.remove(r, own)
		case p < takeCut && len(own) > 0:
			own = wl.take(r, own)
		default:
			own, err = wl.insert(r, own)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (wl *workload) read(r *rand.Rand) {
	wl.c.reads.Add(1)
	idx, published := wl.published(r.IntN(boardSize))
	if !published {
		wl.c.misses.Add(1)
		return
	}
	g, ok := wl.s.Get(idx)
	if !ok {
		wl.c.misses.Add(1)
		return
	}
	_ = g.Value()
	g.Release()
	wl.c.hits.Add(1)
}

func (wl *workload) insert(r *rand.Rand, own []slab.Index) ([]slab.Index, error) {
	idx, err := wl.s.Insert(r.Uint64())
	switch {
	case errors.Is(err, slab.ErrExhausted):
		wl.c.exhausted.Add(1)
		return own, nil
	case err != nil:
		return own, err
	}
	wl.c.inserts.Add(1)
	wl.publish(r.IntN(boardSize), idx)
	return append(own, idx), nil
}

func (wl *workload) remove(r *rand.Rand, own []slab.Index) []slab.Index {
	k := r.IntN(len(own))
	if wl.s.Remove(own[k]) {
		wl.c.removes.Add(1)
	}
	return dropAt(own, k)
}

func (wl *workload) take(r *rand.Rand, own []slab.Index) []slab.Index {
	k := r.IntN(len(own))
	_, err := wl.s.Take(own[k])
	switch {
	case errors.Is(err, slab.ErrBusy):
		wl.c.busy.Add(1)
		return own
	case err == nil:
		wl.c.takes.Add(1)
	}
	return dropAt(own, k)
}

func (wl *workload) publish(slot int, idx slab.Index) {
	wl.board[slot].Store(uint64(idx) + 1)
}

func (wl *workload) published(slot int) (slab.Index, bool) {
	raw := wl.board[slot].Load()
	if raw == 0 {
		return 0, false
	}
	return slab.Index(raw - 1), true
}

// dropAt removes element k by swapping in the last one.
func dropAt(list []slab.Index, k int) []slab.Index {
	list[k] = list[len(list)-1]
	return list[:len(list)-1]
}

// report snapshots the counters. live is counted by iterating the slab.
func (wl *workload) report(elapsed time.Duration) report {
	live := 0
	for range wl.s.All() {
		live++
	}
	ops := wl.c.ops.Load()
	reads := wl.c.reads.Load()
	hits := wl.c.hits.Load()

	hitRate := 0.0
	if reads > 0 {
		hitRate = float64(hits) / float64(reads) * 100
	}
	return report{
		Router:    wl.cfg.Router,
		Shards:    wl.cfg.Shards,
		Workers:   wl.cfg.Workers,
		Seed:      wl.cfg.Seed,
		Elapsed:   elapsed.String(),
		Ops:       ops,
		OpsPerSec: float64(ops) / elapsed.Seconds(),
		Reads:     reads,
		Hits:      hits,
		Misses:    wl.c.misses.Load(),
		HitRate:   hitRate,
		Inserts:   wl.c.inserts.Load(),
		Removes:   wl.c.removes.Load(),
		Takes:     wl.c.takes.Load(),
		Busy:      wl.c.busy.Load(),
		Exhausted: wl.c.exhausted.Load(),
		Live:      live,
	}
}
