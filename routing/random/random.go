// Package random implements a router that picks shards uniformly at random.
package random

import (
	"math/rand/v2"

	"github.com/IvanBrykalov/shardslab/routing"
)

// Router picks a uniformly random shard for every insert.
//
// It uses the runtime's per-thread random source, so there is no shared
// state to contend on (unlike a round-robin counter). The zero value is
// ready to use.
type Router struct{}

// New returns a random router.
func New() Router { return Router{} }

// Route returns a random shard in [0, shards).
func (Router) Route(shards int) uint64 {
	if shards <= 1 {
		return 0
	}
	return rand.Uint64N(uint64(shards))
}

var _ routing.Router = Router{}
