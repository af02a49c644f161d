// Package ring implements the byte layout and SPSC access discipline
// of the submission and completion rings described in spec.md §3-§5:
// the fixed SqEntry/CqEntry layouts, the ring header (head, tail,
// capacity, capacity_mask) that lives inside the shared region itself,
// and the producer/consumer endpoints that enforce the ordering
// invariants of §5 via sync/atomic rather than locks.
package ring

// Opcode selects the file operation an SqEntry describes.
type Opcode uint8

const (
	// OpNop does nothing; result is always 0. Useful for testing and
	// for waking a waiter without touching a file.
	OpNop Opcode = iota
	// OpRead issues an asynchronous read at Offset into the buffer
	// described by UserBuf/BufSize.
	OpRead
	// OpWrite is the symmetric asynchronous write.
	OpWrite

	// opLast is a sentinel, one past the last supported opcode.
	opLast
)

// Supported reports whether op is one of the opcodes the executor
// dispatches; anything else fails submission with -EINVAL per spec.md
// §4.6 and §6.
func (op Opcode) Supported() bool { return op < opLast }

func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "NOP"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// SqEntry is the fixed-layout submission descriptor of spec.md §3.
// Field order and widths are compatibility-critical: this struct is
// read and written directly as bytes inside the shared region, never
// marshaled, so its Go layout IS the wire layout on every supported
// (little-endian) target.
type SqEntry struct {
	Opcode   Opcode
	_        [3]byte // reserved, must be written zero
	Fd       int32
	Offset   uint64
	UserBuf  uint64 // user-space virtual address of the data buffer
	BufSize  uint32
	Flags    uint32 // reserved, must be zero
	UserData uint64 // opaque, echoed on completion
}

// Reset clears e to its zero value, ready for reuse by a producer.
func (e *SqEntry) Reset() { *e = SqEntry{} }

// CqEntry is the fixed-layout completion record of spec.md §3.
type CqEntry struct {
	UserData uint64 // copied verbatim from the SqEntry it completes
	Result   int32  // non-negative byte count, or a negative kerr.Errno
	_        [4]byte
}
