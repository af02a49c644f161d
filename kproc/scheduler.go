package kproc

import "runtime"

// Scheduler is the abstract "spawn a kernel-side task bound to process
// P" and "yield" surface spec.md's §1 scope note places outside the
// async-call core; signalling a waiter is Process.Wake, not part of
// this interface. The executor depends only on
// this interface, never on goroutines directly, so the cooperative
// task model of §9's Design Notes ("avoid any design requiring a
// process-wide async runtime") holds even though the reference
// implementation below is goroutine-backed.
type Scheduler interface {
	// Spawn starts fn as a kernel-side task bound to proc. fn runs
	// until it returns; Spawn does not block on it.
	Spawn(proc *Process, fn func())
	// Yield relinquishes the current task's turn when both rings are
	// quiescent (spec.md §4.6 step 1).
	Yield()
}

// GoroutineScheduler is the reference Scheduler: Spawn starts a
// goroutine, Yield calls runtime.Gosched. It has no notion of
// per-process fairness beyond what the Go runtime itself provides,
// matching spec.md §1's "fairness... beyond what the host scheduler
// provides" non-goal.
type GoroutineScheduler struct{}

var _ Scheduler = GoroutineScheduler{}

// Spawn implements Scheduler.
func (GoroutineScheduler) Spawn(proc *Process, fn func()) {
	go fn()
}

// Yield implements Scheduler.
func (GoroutineScheduler) Yield() {
	runtime.Gosched()
}
