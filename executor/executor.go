// Package executor implements the per-process kernel task of spec.md
// §4.6: it drains the submission ring, dispatches each entry's file
// operation without blocking the drain loop, and posts a completion
// for every dispatched entry once it finishes.
package executor

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kernelkit/asynccall/kerr"
	"github.com/kernelkit/asynccall/klog"
	"github.com/kernelkit/asynccall/kproc"
	"github.com/kernelkit/asynccall/ring"
)

// State is the executor's coarse state, per spec.md §4.6: Idle ->
// Draining -> Idle, with a terminal Stopping entered on process exit.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// maxBatch bounds per-round work so one process cannot starve others
// sharing the host scheduler (spec.md §4.6 fairness note).
const maxBatch = 32

// Executor is the per-process async-call worker. It owns the kernel
// side of both rings and performs no I/O itself: each dispatched entry
// runs as a separate task spawned through Scheduler, so the drain loop
// is never blocked on any one operation's completion.
type Executor struct {
	proc       *kproc.Process
	sched      kproc.Scheduler
	sq         ring.Consumer[ring.SqEntry]
	cq         ring.Producer[ring.CqEntry]
	cqCapacity uint32

	state    atomic.Int32
	inflight atomic.Int32
	alive    atomic.Bool

	cqMu   sync.Mutex
	wg     sync.WaitGroup
	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs an Executor bound to proc, consuming sq and producing
// completions on cq. cqCapacity is the CQ's entry count, used to bound
// in-flight operations per spec.md §4.5.
func New(proc *kproc.Process, sched kproc.Scheduler, sq ring.Consumer[ring.SqEntry], cq ring.Producer[ring.CqEntry], cqCapacity uint32) *Executor {
	e := &Executor{
		proc:       proc,
		sched:      sched,
		sq:         sq,
		cq:         cq,
		cqCapacity: cqCapacity,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	e.alive.Store(true)
	return e
}

// Start spawns the executor's drain loop as a kernel task bound to its
// process.
func (e *Executor) Start() {
	e.sched.Spawn(e.proc, e.run)
}

// State reports the executor's current coarse state.
func (e *Executor) State() State { return State(e.state.Load()) }

func minU32(a, b, c uint32) uint32 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func (e *Executor) run() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			e.wg.Wait()
			return
		default:
		}

		// Compare-and-swap so a concurrent Stop's terminal Stopping is
		// never overwritten.
		e.state.CompareAndSwap(int32(StateDraining), int32(StateIdle))
		tail := e.sq.AcquireTail()
		head := e.sq.Head()
		if head == tail {
			e.sched.Yield()
			continue
		}

		if !e.state.CompareAndSwap(int32(StateIdle), int32(StateDraining)) {
			continue
		}
		pending := tail - head
		// Outstanding completions are those posted but not yet
		// consumed (e.cq.Ready(), which falls as the user drains
		// slower than the kernel posts) plus those still executing
		// (e.inflight, decremented only once their CQE is committed).
		// Bounding on cqCapacity minus inflight alone (ignoring
		// unconsumed, already-posted completions) would let the
		// executor keep dispatching past cq_capacity whenever the
		// user is slow to drain (spec.md §4.5/§8 scenario 3).
		executing := uint32(e.inflight.Load())
		ready := e.cq.Ready()
		var room uint32
		if executing < ready {
			room = ready - executing
		}
		n := minU32(pending, room, maxBatch)
		if n == 0 {
			// CQ is at capacity; back off and let the user drain it.
			e.sched.Yield()
			continue
		}

		for i := uint32(0); i < n; i++ {
			idx := head + i
			// Copy the entry's fields out before releasing the slot:
			// once ReleaseHead runs, the producer may overwrite it.
			entry := *e.sq.Entry(idx)
			e.dispatch(entry)
		}
		e.sq.ReleaseHead(head + n)
	}
}

// dispatch issues entry's operation as its own task and posts its
// completion when it finishes, unordered with respect to other
// in-flight operations (spec.md §4.6 step 2/4).
func (e *Executor) dispatch(entry ring.SqEntry) {
	e.inflight.Add(1)
	e.wg.Add(1)
	e.sched.Spawn(e.proc, func() {
		defer e.wg.Done()
		defer e.inflight.Add(-1)

		result := e.perform(entry)

		// An operation that finishes after Stopping must not touch
		// user memory that may already be unmapped (spec.md §9).
		if !e.alive.Load() {
			return
		}
		e.postCompletion(entry.UserData, result)
	})
}

func (e *Executor) perform(entry ring.SqEntry) int32 {
	switch entry.Opcode {
	case ring.OpNop:
		return 0
	case ring.OpRead:
		return e.doIO(entry, true)
	case ring.OpWrite:
		return e.doIO(entry, false)
	default:
		return kerr.EINVAL.Result()
	}
}

func (e *Executor) doIO(entry ring.SqEntry, isRead bool) int32 {
	file, ok := e.proc.File(entry.Fd)
	if !ok {
		return kerr.EBADF.Result()
	}

	buf, err := e.proc.Translate(entry.UserBuf, entry.BufSize)
	if err != nil {
		return kerr.EFAULT.Result()
	}

	var n int
	var ioErr error
	if isRead {
		n, ioErr = file.ReadAt(buf, int64(entry.Offset))
	} else {
		n, ioErr = file.WriteAt(buf, int64(entry.Offset))
	}

	// A partial transfer is success with no error (spec.md §7): the
	// caller re-submits the remainder if it wants more. A read landing
	// at or past EOF is zero bytes transferred, not a backend failure.
	if ioErr != nil && n == 0 {
		if errors.Is(ioErr, io.EOF) {
			return 0
		}
		klog.Error("async-call operation failed", "opcode", entry.Opcode.String(), "fd", entry.Fd, "err", ioErr)
		return kerr.EIO.Result()
	}
	return int32(n)
}

// postCompletion reserves and commits one CQ slot. Concurrent
// dispatched operations all call this, so it is serialized with a
// mutex standing in for the single logical "kernel" completion
// producer spec.md §5 grants exclusive write access to the CQ.
func (e *Executor) postCompletion(userData uint64, result int32) {
	e.cqMu.Lock()
	defer e.cqMu.Unlock()

	slot, idx, ok := e.cq.Reserve()
	if !ok {
		// inflight is bounded by cqCapacity by construction, so a full
		// CQ here means that invariant broke somewhere: a corrupted
		// count would otherwise make Reserve silently overwrite a
		// completion the user hasn't consumed yet.
		klog.Fatal("async-call cq overflow, invariant violated", "user_data", userData)
	}
	slot.UserData = userData
	slot.Result = result
	e.cq.Commit(idx)

	e.proc.Wake()
}

// Stop enters the Stopping state, discards any completion that has not
// already been posted, and waits for all dispatched operations to
// return before unmapping becomes safe. It is idempotent.
func (e *Executor) Stop() {
	if State(e.state.Swap(int32(StateStopping))) == StateStopping {
		<-e.doneCh
		return
	}
	e.alive.Store(false)
	close(e.stopCh)
	<-e.doneCh
}
