// Package util contains internal helpers (bit math, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "math/bits"

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && (x&(x-1)) == 0
}

// NextPow2 returns the smallest power of two >= x.
// Special cases:
//   - x == 0  -> 1
//   - if the exact next power would overflow 64 bits, the result is clamped to 1<<63
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	return 1 << bits.Len64(x-1)
}

// Log2 returns floor(log2(x)) for x > 0 and 0 for x == 0.
// For powers of two this is the exact exponent, which is what the index
// layout uses to size its bit fields.
func Log2(x uint64) int {
	if x == 0 {
		return 0
	}
	return bits.Len64(x) - 1
}

// Mask returns a mask with the low n bits set. n >= 64 yields all ones.
func Mask(n int) uint64 {
	if n <= 0 {
		return 0
	}
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}
