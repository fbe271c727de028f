// File: smplugin/rma.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One-sided RMA (spec §4.8), grounded on na_sm.c's na_sm_rma: translate
// the local/remote memory handles' segments into iovecs and issue a
// single cross-memory-attach syscall. Platform-specific syscalls live in
// rma_linux.go / rma_other.go.

package smplugin

import (
	"errors"
	"syscall"

	"github.com/momentics/na/na"
)

// processVMOp is the platform hook: copy length bytes described by
// localIOV/remoteIOV between this process and pid.
type processVMOp func(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error)

func rmaPut(ep *Endpoint, op *na.OpID, vmWrite processVMOp) error {
	return rmaExec(ep, op, vmWrite)
}

func rmaGet(ep *Endpoint, op *na.OpID, vmRead processVMOp) error {
	return rmaExec(ep, op, vmRead)
}

func rmaExec(ep *Endpoint, op *na.OpID, vmOp processVMOp) error {
	data, ok := op.Addr.PluginData.(*addrData)
	if !ok {
		return na.NewError("rma", na.AddrNotAvail)
	}

	localSeg := sliceIOV(op.Local, op.LocalOff, op.Length)
	remoteSeg := sliceIOV(op.Remote, op.RemoteOff, op.Length)

	_, err := vmOp(int(data.key.PID), localSeg, remoteSeg, op.Length)
	if err != nil {
		status := na.ProtocolError
		var errno syscall.Errno
		if errors.As(err, &errno) {
			status = na.FromErrno(errno)
		}
		op.Complete(status)
		return na.NewError("rma", status).WithInner(err)
	}
	op.Complete(na.Success)
	return nil
}

// sliceIOV builds the IOV list covering [offset, offset+length) of h's
// segments, splitting at segment boundaries as needed.
func sliceIOV(h *na.MemHandle, offset, length uint64) []na.IOV {
	var out []na.IOV
	var consumed uint64
	var remaining = length
	for i := 0; i < h.IOVCount() && remaining > 0; i++ {
		seg := h.Segment(i)
		segEnd := consumed + seg.Len
		if segEnd <= offset {
			consumed = segEnd
			continue
		}
		start := uint64(0)
		if offset > consumed {
			start = offset - consumed
		}
		avail := seg.Len - start
		take := avail
		if take > remaining {
			take = remaining
		}
		out = append(out, na.IOV{Base: seg.Base[start : start+take], Len: take})
		remaining -= take
		consumed = segEnd
	}
	return out
}
