// File: smplugin/copybuf_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package smplugin

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyBufPoolAcquireReleaseRoundTrip(t *testing.T) {
	var p copyBufPool
	initCopyBufPool(&p)

	idx, ok := p.acquire()
	require.True(t, ok)

	slot := p.slot(idx)
	require.Len(t, slot, copyBufSize)
	copy(slot, []byte("hello"))

	p.release(idx)

	idx2, ok := p.acquire()
	require.True(t, ok)
	require.Equal(t, idx, idx2)
}

func TestCopyBufPoolExhaustion(t *testing.T) {
	var p copyBufPool
	initCopyBufPool(&p)

	acquired := make([]int, 0, numCopyBufs)
	for i := 0; i < numCopyBufs; i++ {
		idx, ok := p.acquire()
		require.True(t, ok)
		acquired = append(acquired, idx)
	}

	_, ok := p.acquire()
	require.False(t, ok)

	p.release(acquired[0])
	idx, ok := p.acquire()
	require.True(t, ok)
	require.Equal(t, acquired[0], idx)
}

func TestCopyBufPoolConcurrentAcquireNeverDoubleAllocates(t *testing.T) {
	var p copyBufPool
	initCopyBufPool(&p)

	var mu sync.Mutex
	seen := make(map[int]bool)

	var wg sync.WaitGroup
	for i := 0; i < numCopyBufs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, ok := p.acquire()
			require.True(t, ok)
			mu.Lock()
			require.False(t, seen[idx], "slot %d acquired twice", idx)
			seen[idx] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, numCopyBufs)
}
