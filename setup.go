package asynccall

import (
	"github.com/google/uuid"

	"github.com/kernelkit/asynccall/executor"
	"github.com/kernelkit/asynccall/kerr"
	"github.com/kernelkit/asynccall/klog"
	"github.com/kernelkit/asynccall/kproc"
	"github.com/kernelkit/asynccall/memregion"
	"github.com/kernelkit/asynccall/ring"
)

// SetupAsyncCall is spec.md §4.7's setup path: validate the requested
// capacities, lay out and allocate the shared region, map its rings,
// and start the executor draining the kernel side. It does not change
// proc's user-space mapping (see kproc.Process.SetUserMapping). It returns the layout descriptor the caller uses to
// find both rings inside its mapping.
//
// A second call for a process that already holds a context returns
// ErrAlreadyExists rather than replacing it.
func SetupAsyncCall(proc *kproc.Process, sched kproc.Scheduler, alloc memregion.Allocator, reqCapacity, compCapacity uint32) (ring.Info, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.m[proc]; exists {
		return ring.Info{}, ErrAlreadyExists
	}
	if reqCapacity == 0 || compCapacity == 0 || reqCapacity > ring.MaxCapacity || compCapacity > ring.MaxCapacity {
		return ring.Info{}, kerr.EINVAL
	}

	info, total := ring.ComputeLayout(reqCapacity, compCapacity)
	region, err := alloc.Allocate(int(total))
	if err != nil {
		klog.Error("async-call setup failed to allocate region", "pid", proc.Pid, "err", err)
		return ring.Info{}, kerr.ENOMEM
	}

	kernelSQ := ring.NewRing[ring.SqEntry](region.Kernel, info.ReqOff, info.ReqCapacity, true)
	userSQ := ring.NewRing[ring.SqEntry](region.User, info.ReqOff, info.ReqCapacity, false)
	kernelCQ := ring.NewRing[ring.CqEntry](region.Kernel, info.CompOff, info.CompCapacity, true)
	userCQ := ring.NewRing[ring.CqEntry](region.User, info.CompOff, info.CompCapacity, false)

	// proc's user-space mapping (the buffers READ/WRITE submissions
	// reference via UserBuf) is a separate, pre-existing mapping the
	// process's address space already has; this region holds only ring
	// metadata and entries, never I/O payloads.
	exec := executor.New(proc, sched, ring.AsConsumer(kernelSQ), ring.AsProducer(kernelCQ), info.CompCapacity)
	exec.Start()

	ctx := &Context{
		ID:       uuid.New(),
		Info:     info,
		region:   region,
		alloc:    alloc,
		executor: exec,
		SQ:       ring.AsProducer(userSQ),
		CQ:       ring.AsConsumer(userCQ),
	}
	reg.m[proc] = ctx

	klog.Info("async-call setup", "pid", proc.Pid, "context_id", ctx.ID, "req_capacity", info.ReqCapacity, "comp_capacity", info.CompCapacity)
	return info, nil
}

// Teardown stops proc's executor and unmaps its region. Operations
// already dispatched either complete and are discarded or are
// interrupted in place by the underlying AsyncFile call returning;
// either way Teardown does not return until it is safe to reclaim the
// region, so it never races an in-flight operation's buffer access.
func Teardown(proc *kproc.Process) error {
	reg.mu.Lock()
	ctx, ok := reg.m[proc]
	if ok {
		delete(reg.m, proc)
	}
	reg.mu.Unlock()

	if !ok {
		return kerr.EINVAL
	}

	ctx.executor.Stop()
	if err := ctx.alloc.Unmap(ctx.region); err != nil {
		// A failed unmap leaves the kernel's view of this region's
		// physical pages unknown; spec.md §7 tier 4 treats this as
		// fatal rather than a recoverable error.
		klog.Fatal("async-call teardown failed to unmap region", "pid", proc.Pid, "context_id", ctx.ID, "err", err)
	}

	klog.Info("async-call teardown complete", "pid", proc.Pid, "context_id", ctx.ID)
	return nil
}
