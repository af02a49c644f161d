// Package kproc models the external collaborators spec.md places out
// of scope but whose interfaces the async-call subsystem consumes: a
// process record with an FD table, a mapped user address space and a
// waiter it can wake, and a scheduler that can spawn a kernel-side task
// bound to a process and yield it.
package kproc

import (
	"sync"

	"github.com/kernelkit/asynccall/kerr"
	"github.com/kernelkit/asynccall/kfile"
)

// Process is the minimal per-process record the async-call subsystem
// needs: an identity, a file table, a user-space buffer to translate
// submission addresses against, and a waiter channel for the "future
// sleep-based wait primitive" of spec.md §4.6 step 5.
type Process struct {
	Pid int32

	mu       sync.Mutex
	files    map[int32]kfile.AsyncFile
	nextFd   int32
	userBase []byte // the process's mapped user-space view, once set

	Waiter chan struct{}
}

// NewProcess creates a process record with an empty file table.
func NewProcess(pid int32) *Process {
	return &Process{
		Pid:    pid,
		files:  make(map[int32]kfile.AsyncFile),
		Waiter: make(chan struct{}, 1),
	}
}

// AddFile installs f in the process's file table and returns the fd
// assigned to it, standing in for the out-of-scope openat/socket paths
// that would normally populate it.
func (p *Process) AddFile(f kfile.AsyncFile) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFd
	p.nextFd++
	p.files[fd] = f
	return fd
}

// File resolves fd to an AsyncFile, or reports it unknown.
func (p *Process) File(fd int32) (kfile.AsyncFile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[fd]
	return f, ok
}

// CloseFile removes fd from the file table.
func (p *Process) CloseFile(fd int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, fd)
}

// SetUserMapping records the process's user-space mapping that
// submission buffer addresses index into, used by Translate. It is
// separate from the async-call ring region.
func (p *Process) SetUserMapping(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userBase = buf
}

// Translate is the VM abstraction of spec.md §4.6: it projects a
// user-space virtual address and length onto the process's mapped
// region, returning -EFAULT instead of panicking when the range falls
// outside what is mapped. addr is an index into the process's user
// mapping rather than a real virtual address, since this module has no
// page tables of its own to walk.
func (p *Process) Translate(addr uint64, length uint32) ([]byte, error) {
	p.mu.Lock()
	base := p.userBase
	p.mu.Unlock()

	if base == nil {
		return nil, kerr.EFAULT
	}
	start := addr
	end := start + uint64(length)
	if length == 0 {
		return base[:0], nil
	}
	if end < start || end > uint64(len(base)) {
		return nil, kerr.EFAULT
	}
	return base[start:end], nil
}

// Wake performs a non-blocking signal of the process's waiter, per
// spec.md §4.6 step 5. A full or absent waiter is not an error: the
// user is either already awake or not waiting.
func (p *Process) Wake() {
	select {
	case p.Waiter <- struct{}{}:
	default:
	}
}
