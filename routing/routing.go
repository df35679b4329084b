// Package routing decides which shard of a slab an insert lands in.
//
// Routing is decoupled from storage: a Router only picks a number, the slab
// wraps it into [0, shards) and owns everything else. Swapping a router never
// changes where existing values live or how their indices decode.
package routing

// Router picks the shard for the next insert.
//
// Route receives the current shard count and may return any value; the slab
// maps it into range (mask for powers of two, modulo otherwise), so routers
// are free to return raw counters or hashes.
//
// Concurrency: Route is called from every inserting goroutine and must be
// safe for concurrent use.
type Router interface {
	Route(shards int) uint64
}

// Func adapts an ordinary function to Router.
type Func func(shards int) uint64

// Route calls f.
func (f Func) Route(shards int) uint64 { return f(shards) }

// Fixed routes every insert to the same shard. Fixed(0) together with a
// single-shard slab is the single-threaded configuration.
type Fixed uint64

// Route returns the fixed shard number.
func (f Fixed) Route(int) uint64 { return uint64(f) }

// Compile-time checks.
var (
	_ Router = Func(nil)
	_ Router = Fixed(0)
)
