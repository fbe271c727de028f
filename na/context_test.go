// File: na/context_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package na

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClass(t *testing.T, ops *Ops) *Class {
	t.Helper()
	return &Class{ops: ops, MaxContexts: 4, MaxIOV: defaultMaxIOV}
}

func TestContextCreateDestroy(t *testing.T) {
	class := newTestClass(t, &Ops{})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)
	require.NotNil(t, ctx)

	require.NoError(t, ContextDestroy(class, ctx))
}

func TestContextDestroyBusyWhenCompletionsPending(t *testing.T) {
	class := newTestClass(t, &Ops{})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)

	op := class.OpCreate()
	require.NoError(t, op.reset(ctx, KindSendExpected, func(*OpID, Status) {}, nil, nil))
	op.complete(Success)

	err = ContextDestroy(class, ctx)
	require.Error(t, err)
	naErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, Busy, naErr.Status)

	n, err := ctx.Trigger(10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, ContextDestroy(class, ctx))
}

func TestTriggerRunsPluginReleaseBeforeCallback(t *testing.T) {
	class := newTestClass(t, &Ops{})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)

	var order []string
	op := class.OpCreate()
	op.PluginRelease = func(*OpID) { order = append(order, "plugin") }
	require.NoError(t, op.reset(ctx, KindRecvExpected, func(*OpID, Status) {
		order = append(order, "user")
	}, nil, nil))
	op.complete(Success)

	n, err := ctx.Trigger(1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"plugin", "user"}, order)
}

func TestTriggerOverflowsPastRingCapacity(t *testing.T) {
	class := newTestClass(t, &Ops{})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)

	const total = completionRingCapacity + 37
	completed := 0
	ops := make([]*OpID, total)
	for i := 0; i < total; i++ {
		op := class.OpCreate()
		require.NoError(t, op.reset(ctx, KindSendUnexpected, func(*OpID, Status) {
			completed++
		}, nil, nil))
		ops[i] = op
		op.complete(Success)
	}
	require.Equal(t, total, ctx.CompletionCount())

	n, err := ctx.Trigger(total)
	require.NoError(t, err)
	require.Equal(t, total, n)
	require.Equal(t, total, completed)
	require.Equal(t, 0, ctx.CompletionCount())
}

func TestPollWaitReturnsImmediatelyWhenCompletionsQueued(t *testing.T) {
	class := newTestClass(t, &Ops{
		PollWait: func(ctx *Context, timeoutMs int) (int, error) {
			require.Equal(t, 0, timeoutMs)
			return 0, nil
		},
	})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)

	op := class.OpCreate()
	require.NoError(t, op.reset(ctx, KindGet, func(*OpID, Status) {}, nil, nil))
	op.complete(Success)

	start := time.Now()
	_, err = ctx.PollWait(5000)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestCancelIdempotentOnCompletedOp(t *testing.T) {
	class := newTestClass(t, &Ops{})
	ctx, err := ContextCreate(class, 0)
	require.NoError(t, err)

	op := class.OpCreate()
	require.NoError(t, op.reset(ctx, KindPut, func(*OpID, Status) {}, nil, nil))
	op.complete(Success)

	status := Cancel(ctx, op)
	require.Equal(t, Success, status)
}
