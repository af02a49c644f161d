// Package kfile models the abstract file object spec.md §1 treats as
// an external collaborator: "the core consumes an abstract file object
// offering asynchronous read/write at an offset." AsyncFile is that
// abstraction; HostFile is a reference implementation backed by a real
// *os.File, used by tests and by any embedder wiring this module to
// actual files.
package kfile

import "os"

// AsyncFile offers positioned read/write. The executor invokes these
// from a per-operation goroutine (see executor.Executor), so an
// implementation is free to block; the asynchrony spec.md §4.6
// requires comes from the executor never blocking its own drain loop
// on any one call, not from this interface being non-blocking itself.
type AsyncFile interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
}

// HostFile adapts an *os.File to AsyncFile.
type HostFile struct {
	f *os.File
}

var _ AsyncFile = (*HostFile)(nil)

// OpenHostFile opens path with flag/perm and wraps it as an AsyncFile,
// standing in for the out-of-scope openat syscall of spec.md §6.
func OpenHostFile(path string, flag int, perm os.FileMode) (*HostFile, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &HostFile{f: f}, nil
}

// ReadAt implements AsyncFile.
func (h *HostFile) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := h.f.ReadAt(buf, offset)
	if err != nil && n > 0 {
		// A short read with io.EOF is not a failure: spec.md §7
		// requires partial success be returned with no error.
		return n, nil
	}
	return n, err
}

// WriteAt implements AsyncFile.
func (h *HostFile) WriteAt(buf []byte, offset int64) (int, error) {
	return h.f.WriteAt(buf, offset)
}

// Close closes the underlying file.
func (h *HostFile) Close() error { return h.f.Close() }
