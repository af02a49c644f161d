package asynccall

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/kernelkit/asynccall/executor"
	"github.com/kernelkit/asynccall/kproc"
	"github.com/kernelkit/asynccall/memregion"
	"github.com/kernelkit/asynccall/ring"
)

// ErrAlreadyExists is returned by SetupAsyncCall when proc already
// holds a context: a process gets at most one async-call channel for
// its lifetime, and a second setup must fail loudly rather than
// silently tear down and replace the first one's rings out from under
// any in-flight operation.
var ErrAlreadyExists = errors.New("asynccall: process already has an async-call context")

// Context is the per-process record spec.md §3 calls the "Async-Call
// Context": the ring layout handed back to the caller, the region
// backing it, and the user-side ring endpoints the caller submits
// through and drains completions from. The kernel-side endpoints are
// held by the executor, never exposed here.
type Context struct {
	// ID correlates this context's setup/teardown/executor log lines
	// across a process's lifetime; it has no protocol meaning.
	ID uuid.UUID

	Info ring.Info

	region   *memregion.Region
	alloc    memregion.Allocator
	executor *executor.Executor

	SQ ring.Producer[ring.SqEntry]
	CQ ring.Consumer[ring.CqEntry]
}

// registry is the process-keyed table of live contexts, guarded by a
// single mutex per spec.md §9's "process-local global state" note.
type registry struct {
	mu sync.Mutex
	m  map[*kproc.Process]*Context
}

var reg = &registry{m: make(map[*kproc.Process]*Context)}

// Lookup returns proc's async-call context, if one is set up.
func Lookup(proc *kproc.Process) (*Context, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	ctx, ok := reg.m[proc]
	return ctx, ok
}
