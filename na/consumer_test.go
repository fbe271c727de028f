// File: na/consumer_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package na

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMsgSendUnexpectedInvokesPluginAndCompletes(t *testing.T) {
	var gotBuf []byte
	var gotTag uint32
	ops := &Ops{
		MsgSendUnexpected: func(ctx *Context, op *OpID) error {
			gotBuf, gotTag = op.Buf, op.Tag
			op.complete(Success)
			return nil
		},
	}
	class := newTestClass(t, ops)
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)
	addr := NewAddress(class, "peer-1")

	op := class.OpCreate()
	done := make(chan Status, 1)
	err = MsgSendUnexpected(ctx, op, addr, []byte("hello"), 42, func(op *OpID, result Status) {
		done <- result
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), gotBuf)
	require.Equal(t, uint32(42), gotTag)

	n, err := ctx.Trigger(1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, Success, <-done)
}

func TestMsgRecvExpectedUnsupportedReturnsOpNotSupported(t *testing.T) {
	class := newTestClass(t, &Ops{})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)
	addr := NewAddress(class, "peer-1")

	op := class.OpCreate()
	err = MsgRecvExpected(ctx, op, addr, make([]byte, 16), 1, func(*OpID, Status) {}, nil)
	require.Error(t, err)
	naErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, OpNotSupported, naErr.Status)
	require.True(t, op.IsCompleted())
}

func TestMemHandleCreateFallsBackToCoreImplementation(t *testing.T) {
	class := newTestClass(t, &Ops{})
	buf := make([]byte, 128)
	h, err := MemHandleCreate(class, buf, ReadWrite)
	require.NoError(t, err)
	require.Equal(t, 1, h.IOVCount())
	require.Equal(t, uint64(128), h.TotalLength())
}

func TestPutAndGetRouteThroughOpsWithOffsets(t *testing.T) {
	var sawLocalOff, sawRemoteOff, sawLength uint64
	ops := &Ops{
		Put: func(ctx *Context, op *OpID) error {
			sawLocalOff, sawRemoteOff, sawLength = op.LocalOff, op.RemoteOff, op.Length
			op.complete(Success)
			return nil
		},
		Get: func(ctx *Context, op *OpID) error {
			op.complete(Success)
			return nil
		},
	}
	class := newTestClass(t, ops)
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)
	addr := NewAddress(class, "peer-1")

	local := NewMemHandle(make([]byte, 64), ReadOnly)
	remote := NewMemHandle(make([]byte, 64), WriteOnly)

	op := class.OpCreate()
	err = Put(ctx, op, addr, local, 8, remote, 16, 32, 0, func(*OpID, Status) {}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(8), sawLocalOff)
	require.Equal(t, uint64(16), sawRemoteOff)
	require.Equal(t, uint64(32), sawLength)

	op2 := class.OpCreate()
	err = Get(ctx, op2, addr, local, 0, remote, 0, 64, 0, func(*OpID, Status) {}, nil)
	require.NoError(t, err)

	n, err := ctx.Trigger(2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPollTryWaitFalseWhenCompletionsPending(t *testing.T) {
	class := newTestClass(t, &Ops{})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)

	require.True(t, PollTryWait(ctx))

	op := class.OpCreate()
	require.NoError(t, op.reset(ctx, KindGet, func(*OpID, Status) {}, nil, nil))
	op.complete(Success)

	require.False(t, PollTryWait(ctx))
}

func TestErrorToString(t *testing.T) {
	require.Equal(t, "resource busy", ErrorToString(Busy))
}
