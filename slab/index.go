package slab

import (
	"fmt"
	"math/bits"

	"github.com/IvanBrykalov/shardslab/internal/util"
)

// Index is an opaque handle to a value stored in a Slab.
//
// It packs (from low to high bits) the slot address within its shard, the
// shard id, the slot generation at insert time and, optionally, bits reserved
// for the caller (Options.ReservedBits). Equality and ordering are by raw
// bits. An Index stays meaningful until its slot is reclaimed; after that
// every operation with it fails as absent, even once the slot is reused.
type Index uint64

// String renders the raw bits; the layout depends on the slab's Options.
func (i Index) String() string { return fmt.Sprintf("Index(%#x)", uint64(i)) }

const (
	// Generations must be wide enough that a stale Index cannot observe its
	// slot wrap back to the same generation in practice. This is an
	// assumption about workload lifetimes, not a guarantee.
	minGenerationBits = 24
	// The lifecycle word stores the generation in 32 bits.
	maxGenerationBits = 32

	// Page sizes are capped so that slot offsets fit the 32-bit free-list
	// links with room for the null sentinel.
	maxPageShift = 31
)

// layout describes how an Index is packed for a particular configuration.
//
// Addresses are contiguous across a shard's pages: page n holds
// InitialPageSize<<n slots and starts at address InitialPageSize*(2^n-1), so
// the page number is recovered from the address with a single bit length.
type layout struct {
	initShift uint // log2(InitialPageSize)
	maxPages  int
	addrBits  uint
	shardBits uint
	genBits   uint
	reserved  uint
	unused    uint64 // bits that are neither fields nor reserved; must be zero
}

func newLayout(initSize, maxPages, shards, reserved int) (layout, error) {
	l := layout{
		initShift: uint(util.Log2(uint64(initSize))),
		maxPages:  maxPages,
		shardBits: uint(util.Log2(uint64(shards))),
		reserved:  uint(reserved),
	}
	if int(l.initShift)+maxPages-1 > maxPageShift {
		return layout{}, fmt.Errorf("%w: InitialPageSize %d with MaxPages %d gives pages over 2^%d slots",
			ErrInvalidOptions, initSize, maxPages, maxPageShift)
	}
	l.addrBits = l.initShift + uint(maxPages)

	used := int(l.addrBits + l.shardBits)
	avail := 64 - used - reserved
	if avail < minGenerationBits {
		return layout{}, fmt.Errorf("%w: only %d generation bits left (need %d); lower Shards, MaxPages, InitialPageSize or ReservedBits",
			ErrInvalidOptions, avail, minGenerationBits)
	}
	l.genBits = uint(min(avail, maxGenerationBits))
	l.unused = util.Mask(64-reserved) &^ util.Mask(used+int(l.genBits))
	return l, nil
}

func (l layout) genShift() uint  { return l.addrBits + l.shardBits }
func (l layout) genMask() uint32 { return uint32(util.Mask(int(l.genBits))) }

func (l layout) pack(shard int, addr uint64, gen uint32) Index {
	return Index(addr | uint64(shard)<<l.addrBits | uint64(gen)<<l.genShift())
}

// unpack splits an Index into its fields. Reserved bits are ignored;
// ok is false when unused bits are set (the Index was not issued by a slab
// with this layout).
func (l layout) unpack(i Index) (shard int, addr uint64, gen uint32, ok bool) {
	v := uint64(i)
	if v&l.unused != 0 {
		return 0, 0, 0, false
	}
	addr = v & util.Mask(int(l.addrBits))
	shard = int((v >> l.addrBits) & util.Mask(int(l.shardBits)))
	gen = uint32((v >> l.genShift()) & util.Mask(int(l.genBits)))
	return shard, addr, gen, true
}

// pageSize returns the number of slots in page n.
func (l layout) pageSize(n int) int { return 1 << (l.initShift + uint(n)) }

// pageBase returns the address of slot 0 of page n.
func (l layout) pageBase(n int) uint64 { return (uint64(1)<<uint(n) - 1) << l.initShift }

// pageOf maps an address to its page number and offset within that page.
// The page number may exceed maxPages for addresses no slab ever issued.
func (l layout) pageOf(addr uint64) (int, uint64) {
	n := bits.Len64((addr+1<<l.initShift)>>l.initShift) - 1
	return n, addr - l.pageBase(n)
}

// reservedShift is the position of the lowest reserved bit.
func (l layout) reservedShift() uint { return 64 - l.reserved }

// WithReserved returns idx with its reserved bits replaced by tag.
// Tag bits beyond Options.ReservedBits are discarded. With no reserved bits
// configured idx is returned unchanged.
func (s *Slab[V]) WithReserved(idx Index, tag uint64) Index {
	l := s.layout
	if l.reserved == 0 {
		return idx
	}
	keep := util.Mask(int(l.reservedShift()))
	return Index(uint64(idx)&keep | (tag&util.Mask(int(l.reserved)))<<l.reservedShift())
}

// Reserved returns the caller-owned reserved bits of idx.
func (s *Slab[V]) Reserved(idx Index) uint64 {
	l := s.layout
	if l.reserved == 0 {
		return 0
	}
	return uint64(idx) >> l.reservedShift()
}
