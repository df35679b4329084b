package slab

import (
	"fmt"
	"log/slog"

	"github.com/IvanBrykalov/shardslab/internal/util"
	"github.com/IvanBrykalov/shardslab/routing"
	"github.com/IvanBrykalov/shardslab/routing/roundrobin"
)

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultInitialPageSize = 32
	DefaultMaxPages        = 20
)

// Metrics exposes slab-level observability hooks.
// All methods are called on the hot path; keep them cheap.
// A NoopMetrics implementation is provided and used by default.
//
// Every hook is a monotonic event. There is no size gauge:
// a live-value count is stale before anyone can read it.
type Metrics interface {
	Insert()        // a value was inserted
	Hit()           // Get returned a guard
	Miss()          // Get found nothing (stale, absent or malformed index)
	Reclaim()       // a slot was reclaimed and returned to its free list
	Busy()          // Take refused because guards were outstanding
	Grow(slots int) // a page with this many slots was allocated
	Exhausted()     // Insert failed with ErrExhausted
}

// Options configures a Slab. Zero values are safe;
// defaults are applied in New():
//   - Shards <= 0        => auto (≈ 2*GOMAXPROCS, power of two)
//   - InitialPageSize 0  => DefaultInitialPageSize
//   - MaxPages 0         => DefaultMaxPages
//   - nil Router         => round robin
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => discard
//
// The index layout is derived from Shards, InitialPageSize, MaxPages and
// ReservedBits; New fails if it leaves fewer than 24 generation bits.
type Options[V any] struct {
	// Shards is the number of shards, rounded up to a power of two.
	// Use 1 for a single-threaded configuration.
	Shards int

	// InitialPageSize is the slot count of every shard's first page, rounded
	// up to a power of two. Page n holds InitialPageSize<<n slots.
	InitialPageSize int

	// MaxPages caps the number of pages per shard. Together with
	// InitialPageSize it bounds capacity at
	// Shards * InitialPageSize * (2^MaxPages - 1) slots.
	MaxPages int

	// ReservedBits leaves the top bits of every Index to the caller
	// (see Slab.WithReserved). Issued indices have them zeroed and lookups
	// ignore them.
	ReservedBits int

	// Router picks the shard each insert starts from; nil => round robin.
	Router routing.Router

	// OnDrop is called once for every value the slab discards: on Remove,
	// when the last guard of a removed value is released, and on Close.
	// It is not called for values returned by Take. It runs on whichever
	// goroutine performs the reclamation; keep it lightweight.
	OnDrop func(v V)

	Metrics Metrics

	// Logger receives Debug events for page growth, Warn on exhaustion and
	// Info on Close. nil => discard.
	Logger *slog.Logger
}

// withDefaults validates the options and fills in defaults.
func (o Options[V]) withDefaults() (Options[V], error) {
	switch {
	case o.Shards < 0:
		return o, fmt.Errorf("%w: Shards must be >= 0, got %d", ErrInvalidOptions, o.Shards)
	case o.InitialPageSize < 0:
		return o, fmt.Errorf("%w: InitialPageSize must be >= 0, got %d", ErrInvalidOptions, o.InitialPageSize)
	case o.MaxPages < 0 || o.MaxPages > maxPageShift+1:
		return o, fmt.Errorf("%w: MaxPages must be in [0, %d], got %d", ErrInvalidOptions, maxPageShift+1, o.MaxPages)
	case o.ReservedBits < 0 || o.ReservedBits >= 64:
		return o, fmt.Errorf("%w: ReservedBits must be in [0, 64), got %d", ErrInvalidOptions, o.ReservedBits)
	}

	if o.Shards == 0 {
		o.Shards = util.ReasonableShardCount()
	}
	o.Shards = int(util.NextPow2(uint64(o.Shards)))

	if o.InitialPageSize == 0 {
		o.InitialPageSize = DefaultInitialPageSize
	}
	o.InitialPageSize = int(util.NextPow2(uint64(o.InitialPageSize)))

	if o.MaxPages == 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Router == nil {
		o.Router = roundrobin.New()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o, nil
}
