package slab

import "errors"

var (
	// ErrExhausted is returned by Insert/Create when every shard has all of
	// its MaxPages pages allocated and full.
	ErrExhausted = errors.New("slab: exhausted (every shard is at MaxPages and full)")

	// ErrNotFound is returned by Take when the index is stale, was never
	// issued, or its value is already being removed. It is the expected
	// "absent" outcome, not a fault.
	ErrNotFound = errors.New("slab: index is stale or absent")

	// ErrBusy is returned by Take while guards on the value are outstanding.
	// The value is left in place; retry later or use TakeWait.
	ErrBusy = errors.New("slab: value is borrowed by outstanding guards")

	// ErrClosed is returned by Insert/Create/Take after Close.
	ErrClosed = errors.New("slab: closed")

	// ErrInvalidOptions wraps every Options validation failure in New.
	ErrInvalidOptions = errors.New("slab: invalid options")
)
