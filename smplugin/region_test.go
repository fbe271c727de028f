// File: smplugin/region_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package smplugin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegion(t *testing.T) *region {
	t.Helper()
	buf := make([]byte, regionSize)
	r := asRegion(buf)
	initRegion(r)
	return r
}

func TestQueuePairReserveExcludesUnexpectedPair(t *testing.T) {
	r := newTestRegion(t)

	seen := map[uint8]bool{}
	for i := 0; i < maxPeers-1; i++ {
		idx, ok := queuePairReserve(r)
		require.True(t, ok)
		require.NotEqual(t, unexpectedPair, idx)
		require.False(t, seen[idx])
		seen[idx] = true
	}

	_, ok := queuePairReserve(r)
	require.False(t, ok, "region should be exhausted after reserving every non-unexpected slot")
}

func TestQueuePairReleaseAllowsReReserve(t *testing.T) {
	r := newTestRegion(t)

	idx, ok := queuePairReserve(r)
	require.True(t, ok)

	queuePairRelease(r, idx)

	idx2, ok := queuePairReserve(r)
	require.True(t, ok)
	require.Equal(t, idx, idx2)
}

func TestAsRegionPanicsOnUndersizedBuffer(t *testing.T) {
	require.Panics(t, func() {
		asRegion(make([]byte, 4))
	})
}

func TestInitRegionLeavesQueuePairsEmpty(t *testing.T) {
	r := newTestRegion(t)
	for i := range r.queuePairs {
		require.True(t, r.queuePairs[i].tx.isEmpty())
		require.True(t, r.queuePairs[i].rx.isEmpty())
	}
}
