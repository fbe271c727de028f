//go:build unix

// File: namem/shm.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// POSIX shared-memory map/unmap with create-or-open semantics, used by the
// SM plugin's shared region (spec §4.4). On Linux, POSIX shm objects are
// ordinary files under /dev/shm; shm_open(3) is equivalent to open(2) on
// that tmpfs mount, which is the approach na_sm_region_open takes in the
// original Mercury source and the one used here.

package namem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ShmRegion is a page-aligned mapping of a POSIX shared-memory object.
type ShmRegion struct {
	Data []byte
	Path string
	fd   int
	size int
}

// ShmOpenOrCreate opens the shared-memory object at path, creating it with
// the given size if it does not already exist. If it exists, the caller's
// requested size is ignored in favor of the file's actual size (an
// existing region is assumed to have been sized by its owner).
func ShmOpenOrCreate(path string, size int) (*ShmRegion, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0600)
	if err != nil {
		return nil, fmt.Errorf("namem: shm open %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("namem: shm fstat %s: %w", path, err)
	}

	actualSize := size
	if st.Size > 0 {
		actualSize = int(st.Size)
	} else {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("namem: shm ftruncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(fd, 0, actualSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("namem: shm mmap %s: %w", path, err)
	}

	return &ShmRegion{Data: data, Path: path, fd: fd, size: actualSize}, nil
}

// ShmOpenExisting maps an already-created shared-memory object read-write
// without truncating it, for a peer attaching to another process's region.
func ShmOpenExisting(path string) (*ShmRegion, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("namem: shm open existing %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("namem: shm fstat %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("namem: shm mmap existing %s: %w", path, err)
	}
	return &ShmRegion{Data: data, Path: path, fd: fd, size: int(st.Size)}, nil
}

// Close unmaps the region and closes the backing file descriptor. It does
// not unlink the path; callers that own the region call Unlink separately
// at teardown (spec §4.5 "unlinks the FIFO ... unmaps the region").
func (r *ShmRegion) Close() error {
	if r == nil || r.Data == nil {
		return nil
	}
	err := unix.Munmap(r.Data)
	r.Data = nil
	if cerr := unix.Close(r.fd); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Unlink removes the shared-memory object's backing path. Best effort: the
// caller only does this for a region it owns, at process exit or explicit
// teardown (spec §4.4 "best-effort cleanup").
func Unlink(path string) error {
	return unix.Unlink(path)
}
