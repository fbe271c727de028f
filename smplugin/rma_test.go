// File: smplugin/rma_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package smplugin

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/na/na"
)

func newRMAOp(t *testing.T, local, remote []byte, localOff, remoteOff, length uint64) *na.OpID {
	t.Helper()
	addr := na.NewAddress(&na.Class{}, peerKey{PID: int32(1234), ID: 1})
	addr.PluginData = newAddrData(nil, peerKey{PID: int32(1234), ID: 1})
	return &na.OpID{
		Addr:      addr,
		Local:     na.NewMemHandle(local, na.ReadWrite),
		Remote:    na.NewMemHandle(remote, na.ReadWrite),
		LocalOff:  localOff,
		RemoteOff: remoteOff,
		Length:    length,
	}
}

func TestRmaPutInvokesVMOpAndCompletes(t *testing.T) {
	local := []byte("payload-data")
	remote := make([]byte, 32)
	op := newRMAOp(t, local, remote, 0, 0, uint64(len(local)))

	var gotPID int
	fake := func(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
		gotPID = pid
		require.Len(t, localIOV, 1)
		require.Len(t, remoteIOV, 1)
		require.Equal(t, uint64(len(local)), length)
		return int(length), nil
	}

	require.NoError(t, rmaPut(&Endpoint{}, op, fake))
	require.Equal(t, 1234, gotPID)
	require.Equal(t, na.Success, op.Result())
	require.True(t, op.IsCompleted())
}

func TestRmaGetMapsErrnoToStatus(t *testing.T) {
	op := newRMAOp(t, make([]byte, 8), make([]byte, 8), 0, 0, 8)

	fake := func(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
		return 0, syscall.EFAULT
	}

	err := rmaGet(&Endpoint{}, op, fake)
	require.Error(t, err)
	naErr, ok := err.(*na.Error)
	require.True(t, ok)
	require.Equal(t, na.FromErrno(syscall.EFAULT), naErr.Status)
	require.Equal(t, naErr.Status, op.Result())
}

func TestRmaExecWrapsNonErrnoError(t *testing.T) {
	op := newRMAOp(t, make([]byte, 8), make([]byte, 8), 0, 0, 8)

	fake := func(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
		return 0, errors.New("boom")
	}

	err := rmaExec(&Endpoint{}, op, fake)
	require.Error(t, err)
	naErr, ok := err.(*na.Error)
	require.True(t, ok)
	require.Equal(t, na.ProtocolError, naErr.Status)
}

func TestRmaExecUnresolvedAddressFails(t *testing.T) {
	op := &na.OpID{
		Addr:   na.NewAddress(&na.Class{}, "not-an-addrdata"),
		Local:  na.NewMemHandle(make([]byte, 8), na.ReadWrite),
		Remote: na.NewMemHandle(make([]byte, 8), na.ReadWrite),
		Length: 8,
	}
	fake := func(pid int, localIOV, remoteIOV []na.IOV, length uint64) (int, error) {
		t.Fatal("vmOp should not be called for an address with no plugin data")
		return 0, nil
	}
	err := rmaExec(&Endpoint{}, op, fake)
	require.Error(t, err)
}

func TestSliceIOVSplitsAtSegmentBoundaries(t *testing.T) {
	h := na.NewMemHandleSegments([]na.IOV{
		{Base: []byte("0123456789"), Len: 10},
		{Base: []byte("abcdefghij"), Len: 10},
	}, na.ReadWrite)

	segs := sliceIOV(h, 5, 10)
	require.Len(t, segs, 2)
	require.Equal(t, uint64(5), segs[0].Len)
	require.Equal(t, "56789", string(segs[0].Base))
	require.Equal(t, uint64(5), segs[1].Len)
	require.Equal(t, "abcde", string(segs[1].Base))
}
