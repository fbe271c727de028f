//go:build linux

// File: smplugin/rma_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux RMA backend using process_vm_readv/process_vm_writev (spec §4.8).

package smplugin

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/na/na"
)

func vmRead(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
	local := toUnixIOV(localIOV)
	remote := toUnixIOV(remoteIOV)
	return unix.ProcessVMReadv(pid, local, remote, 0)
}

func vmWrite(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
	local := toUnixIOV(localIOV)
	remote := toUnixIOV(remoteIOV)
	return unix.ProcessVMWritev(pid, local, remote, 0)
}

func toUnixIOV(segs []na.IOV) []unix.Iovec {
	out := make([]unix.Iovec, len(segs))
	for i, s := range segs {
		if len(s.Base) > 0 {
			out[i].Base = &s.Base[0]
		}
		out[i].SetLen(int(s.Len))
	}
	return out
}
