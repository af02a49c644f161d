//go:build linux

// Package memregion implements the Shared-Region Allocator of
// spec.md §4.1: allocating a contiguous page-aligned region and
// double-mapping it into a "kernel" view and a "user" view with
// identical contents and compatible permissions.
//
// A real kernel would satisfy this by mapping the same physical pages
// into two page tables. This module runs as a single unprivileged Go
// process, so it gets the equivalent guarantee — two independently
// addressed mappings sharing one physical backing, where a write
// through one is visible through the other — by mmap-ing an anonymous
// memfd twice, the same trick the teacher and the pack use to map SQ,
// CQ and SQE regions out of an io_uring fd.
package memregion

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PageSize is the allocation granularity; sizes are rounded up to it.
const PageSize = 4096

// AlignUp rounds size up to the next multiple of PageSize.
func AlignUp(size int) int {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// Region is the pair of mappings returned by Allocate: Kernel and User
// are distinct []byte views over the same physical pages.
type Region struct {
	Kernel []byte
	User   []byte

	fd int
}

// Allocator is the abstract "map region R, readable+writable, into
// both kernel and a given user address space, size S" operation spec.md
// treats as an external collaborator, plus its inverse.
type Allocator interface {
	Allocate(size int) (*Region, error)
	Unmap(r *Region) error
}

// HostAllocator is the concrete Allocator backed by memfd_create + mmap.
type HostAllocator struct{}

var _ Allocator = HostAllocator{}

// Allocate implements Allocator. size is rounded up to a page boundary.
// On any failure no partial mapping persists.
func (HostAllocator) Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memregion: invalid size %d", size)
	}
	size = AlignUp(size)

	fd, err := unix.MemfdCreate("asynccall-region", 0)
	if err != nil {
		return nil, fmt.Errorf("memregion: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memregion: ftruncate: %w", err)
	}

	kernelView, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memregion: mmap kernel view: %w", err)
	}

	userView, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Munmap(kernelView)
		unix.Close(fd)
		return nil, fmt.Errorf("memregion: mmap user view: %w", err)
	}

	return &Region{Kernel: kernelView, User: userView, fd: fd}, nil
}

// Unmap removes both mappings and frees the physical pages. It must be
// called exactly once per successful Allocate.
func (HostAllocator) Unmap(r *Region) error {
	var firstErr error
	if err := unix.Munmap(r.Kernel); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("memregion: munmap kernel view: %w", err)
	}
	if err := unix.Munmap(r.User); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("memregion: munmap user view: %w", err)
	}
	if err := unix.Close(r.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("memregion: close memfd: %w", err)
	}
	return firstErr
}
