// File: smplugin/retry_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package smplugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/na/na"
)

func TestRetryQueueDrainSucceedsEventually(t *testing.T) {
	rq := newRetryQueue()
	op := &na.OpID{}

	attempts := 0
	rq.push(retryEntry{op: op, retry: func(op *na.OpID) (bool, error) {
		attempts++
		if attempts < 3 {
			return true, nil
		}
		op.Complete(na.Success)
		return false, nil
	}})

	require.Equal(t, 1, rq.len())
	rq.drain()
	require.Equal(t, 1, rq.len())
	rq.drain()
	require.Equal(t, 1, rq.len())
	rq.drain()
	require.Equal(t, 0, rq.len())
	require.True(t, op.IsCompleted())
	require.Equal(t, 3, attempts)
}

func TestRetryQueueDrainStopsOnHardError(t *testing.T) {
	rq := newRetryQueue()
	op := &na.OpID{}

	rq.push(retryEntry{op: op, retry: func(op *na.OpID) (bool, error) {
		return false, errors.New("hard failure")
	}})

	rq.drain()
	require.Equal(t, 0, rq.len())
	require.False(t, op.IsRetrying())
}

func TestRetryQueueDrainCompletesCanceledOpWithoutCallingRetry(t *testing.T) {
	rq := newRetryQueue()
	op := &na.OpID{}
	op.TryCancel()

	called := false
	rq.push(retryEntry{op: op, retry: func(op *na.OpID) (bool, error) {
		called = true
		return true, nil
	}})

	rq.drain()
	require.False(t, called)
	require.True(t, op.IsCompleted())
	require.Equal(t, na.Canceled, op.Result())
}

func TestRetryQueuePushSetsRetryingBit(t *testing.T) {
	rq := newRetryQueue()
	op := &na.OpID{}
	require.False(t, op.IsRetrying())
	rq.push(retryEntry{op: op, retry: func(op *na.OpID) (bool, error) { return true, nil }})
	require.True(t, op.IsRetrying())
}
