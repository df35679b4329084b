package util

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// CacheLinePad separates hot fields into distinct cache lines.
// The size follows the target architecture (x/sys/cpu knows it; the runtime
// keeps its own copy unexported).
type CacheLinePad = cpu.CacheLinePad

// PaddedAtomicUint64 is an atomic uint64 followed by a full cache line of
// padding, so that adjacent instances (e.g. free-list heads of neighbouring
// pages) never share a line.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ CacheLinePad
}
