//go:build !linux

// File: smplugin/rma_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux RMA backend stub. macOS would use mach_vm_read_overwrite /
// mach_vm_write via cgo; omitted here since the teacher's dependency
// stack carries no cgo Mach bindings to ground that on, so the gap is a
// straightforward OpNotSupported rather than a fabricated binding.

package smplugin

import (
	"syscall"

	"github.com/momentics/na/na"
)

func vmRead(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
	return 0, syscall.ENOSYS
}

func vmWrite(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
	return 0, syscall.ENOSYS
}
