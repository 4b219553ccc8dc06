// Copyright 2024 The kale authors. All rights reserved.

// Package framebuf implements a double-buffered slot pair for
// producer/consumer hand-off across a frame boundary: the
// producer always writes into its own slot; the consumer always reads
// the other, stable slot; end_frame is the single synchronization
// point that swaps the two.
package framebuf

import "sync/atomic"

// Double holds two instances of T and hands the producer and the
// consumer opposite slots at all times. The zero value is not usable;
// create one with New.
type Double[T any] struct {
	slots [2]T
	// producer indexes slots[producer] for writes; the consumer reads
	// slots[1-producer]. Stored atomically so EndFrame's swap is visible
	// to a concurrent reader without extra locking (the contract only
	// requires that reads *after* the swap observe it).
	producer atomic.Uint32
}

// New creates a Double with both slots set to their zero value.
func New[T any]() *Double[T] {
	return &Double[T]{}
}

// WriteBuffer returns the producer's current slot.
func (d *Double[T]) WriteBuffer() *T {
	return &d.slots[d.producer.Load()&1]
}

// ReadBuffer returns the consumer's current slot.
func (d *Double[T]) ReadBuffer() *T {
	return &d.slots[1-(d.producer.Load()&1)]
}

// EndFrame swaps the producer and consumer slots. It is the only
// synchronization point: reads from ReadBuffer after this call observe
// every write made to the producer's slot before it.
func (d *Double[T]) EndFrame() {
	d.producer.Store(1 - d.producer.Load())
}
