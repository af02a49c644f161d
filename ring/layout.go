package ring

import "unsafe"

// MaxCapacity bounds req_capacity and comp_capacity (spec.md §7, §8):
// requests above it fail setup with -EINVAL.
const MaxCapacity = 1 << 16

const headerSize = 32 // 8 uint32 fields: {head,tail,capacity,mask} x2

// Offsets describes the byte offsets of one ring's fields within the
// shared region, as returned to user space in Info (spec.md §6's
// async_call_info req_off/comp_off blocks).
type Offsets struct {
	Head         uint32
	Tail         uint32
	Capacity     uint32
	CapacityMask uint32
	Entries      uint32
}

// Info is the immutable-after-setup layout descriptor handed back from
// SetupAsyncCall: spec.md's async_call_info.
type Info struct {
	BufSize uint64
	ReqOff  Offsets
	CompOff Offsets

	ReqCapacity  uint32
	CompCapacity uint32
}

// NextPow2 rounds n up to the next power of two, with a floor of 1.
func NextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func alignUp(off, align uint32) uint32 {
	return (off + align - 1) &^ (align - 1)
}

// ComputeLayout rounds reqCapacity/compCapacity up to powers of two and
// lays out the header, SQ entries array, and CQ entries array inside a
// single region, per spec.md §4.2. It returns the completed Info and
// the total region size in bytes (not yet page-aligned).
func ComputeLayout(reqCapacity, compCapacity uint32) (Info, uint64) {
	reqCap := NextPow2(reqCapacity)
	compCap := NextPow2(compCapacity)

	sqEntrySize := uint32(unsafe.Sizeof(SqEntry{}))
	cqEntrySize := uint32(unsafe.Sizeof(CqEntry{}))

	sqOff := alignUp(headerSize, uint32(unsafe.Alignof(SqEntry{})))
	sqBytes := reqCap * sqEntrySize

	cqOff := alignUp(sqOff+sqBytes, uint32(unsafe.Alignof(CqEntry{})))
	cqBytes := compCap * cqEntrySize

	total := uint64(cqOff + cqBytes)

	info := Info{
		BufSize:      total,
		ReqCapacity:  reqCap,
		CompCapacity: compCap,
		ReqOff: Offsets{
			Head:         0,
			Tail:         4,
			Capacity:     8,
			CapacityMask: 12,
			Entries:      sqOff,
		},
		CompOff: Offsets{
			Head:         16,
			Tail:         20,
			Capacity:     24,
			CapacityMask: 28,
			Entries:      cqOff,
		},
	}
	return info, total
}
