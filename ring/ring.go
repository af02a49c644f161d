package ring

import (
	"sync/atomic"
	"unsafe"
)

// Ring is a typed view over one ring's header and entries array inside
// a shared-region byte slice. It is the "two distinct views sharing
// physical storage" of spec.md §9's Design Notes: constructing a Ring
// from the kernel-side []byte and another from the user-side []byte
// yields two Go objects that alias the same physical bytes, so a
// release store through one is an acquire-visible load through the
// other without any copying.
//
// A Ring exposes no endpoint by itself; call AsProducer/AsConsumer to
// obtain the one role this side of the boundary is allowed to play.
// Assigning both roles to the same side violates the SPSC discipline
// of spec.md §5 and is a programming error this package does not
// defend against, matching the spec's "violations are user error".
type Ring[T any] struct {
	head         *uint32
	tail         *uint32
	capacity     *uint32
	capacityMask *uint32
	entries      []T
}

// NewRing constructs a Ring over buf at the given field offsets.
// initialize, when true, zeroes head/tail and writes capacity and
// capacity_mask; pass false when attaching to an already-initialized
// region (e.g. the user-side view of a region whose kernel-side view
// the setup path already initialized).
func NewRing[T any](buf []byte, off Offsets, capacity uint32, initialize bool) *Ring[T] {
	base := unsafe.Pointer(&buf[0])
	r := &Ring[T]{
		head:         (*uint32)(unsafe.Add(base, off.Head)),
		tail:         (*uint32)(unsafe.Add(base, off.Tail)),
		capacity:     (*uint32)(unsafe.Add(base, off.Capacity)),
		capacityMask: (*uint32)(unsafe.Add(base, off.CapacityMask)),
	}
	entriesPtr := unsafe.Add(base, off.Entries)
	r.entries = unsafe.Slice((*T)(entriesPtr), capacity)

	if initialize {
		atomic.StoreUint32(r.head, 0)
		atomic.StoreUint32(r.tail, 0)
		atomic.StoreUint32(r.capacity, capacity)
		atomic.StoreUint32(r.capacityMask, capacity-1)
	}
	return r
}

// Capacity returns the ring's fixed, power-of-two capacity.
func (r *Ring[T]) Capacity() uint32 { return atomic.LoadUint32(r.capacity) }

func (r *Ring[T]) mask() uint32 { return atomic.LoadUint32(r.capacityMask) }

// slot projects index i into the entries array, applying the capacity
// mask so no value read from the ring (or from a peer's published
// index) is ever used for indexing without bounds projection.
func (r *Ring[T]) slot(i uint32) *T {
	return &r.entries[i&r.mask()]
}

// Producer is the SPSC producer endpoint (§4.3/§4.5): reserve a slot,
// fill it, publish the advance with release semantics.
type Producer[T any] struct{ r *Ring[T] }

// AsProducer returns the producer endpoint of r. Call this from
// exactly one side of the boundary for this ring's lifetime.
func AsProducer[T any](r *Ring[T]) Producer[T] { return Producer[T]{r} }

// Reserve returns the next slot to fill, or ok=false if the ring is
// full (tail - head == capacity).
func (p Producer[T]) Reserve() (slot *T, index uint32, ok bool) {
	head := atomic.LoadUint32(p.r.head)
	tail := atomic.LoadUint32(p.r.tail)
	if tail-head == p.r.Capacity() {
		return nil, 0, false
	}
	return p.r.slot(tail), tail, true
}

// Commit publishes the slot reserved as index, advancing tail with
// release semantics. Must be called after the slot's fields are fully
// written (spec.md §3 ordering invariant 1/2).
func (p Producer[T]) Commit(index uint32) {
	atomic.StoreUint32(p.r.tail, index+1)
}

// Ready reports the number of slots available to reserve.
func (p Producer[T]) Ready() uint32 {
	head := atomic.LoadUint32(p.r.head)
	tail := atomic.LoadUint32(p.r.tail)
	return p.r.Capacity() - (tail - head)
}

// Consumer is the SPSC consumer endpoint: acquire the published tail,
// read entries, publish the head advance once done with them.
type Consumer[T any] struct{ r *Ring[T] }

// AsConsumer returns the consumer endpoint of r.
func AsConsumer[T any](r *Ring[T]) Consumer[T] { return Consumer[T]{r} }

// AcquireTail reads the producer-published tail with acquire semantics.
func (c Consumer[T]) AcquireTail() uint32 { return atomic.LoadUint32(c.r.tail) }

// Head returns the consumer's current head position, as stored in the
// shared ring header.
func (c Consumer[T]) Head() uint32 { return atomic.LoadUint32(c.r.head) }

// Entry returns a pointer to the slot at index i (masked).
func (c Consumer[T]) Entry(i uint32) *T { return c.r.slot(i) }

// ReleaseHead publishes the consumer's head advance to newHead with
// release semantics: only after this store may the producer reuse
// those slots. The advance may be coalesced across several consumed
// entries (spec.md §4.4).
func (c Consumer[T]) ReleaseHead(newHead uint32) {
	atomic.StoreUint32(c.r.head, newHead)
}

// Pending returns the number of entries available to consume.
func (c Consumer[T]) Pending() uint32 {
	return c.AcquireTail() - c.Head()
}
