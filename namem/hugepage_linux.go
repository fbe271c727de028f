//go:build linux

// File: namem/hugepage_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux huge-page allocation via mmap with MAP_HUGETLB. Best effort: falls
// back to reporting unavailability rather than failing the caller, since
// huge pages require system configuration (/proc/sys/vm/nr_hugepages) the
// NA layer cannot assume.

package namem

import (
	"golang.org/x/sys/unix"
)

func hugePageAllocPlatform(size int) ([]byte, bool) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB)
	if err != nil {
		return nil, false
	}
	return data, true
}

func hugePageFreePlatform(buf []byte) {
	if buf == nil {
		return
	}
	_ = unix.Munmap(buf)
}
