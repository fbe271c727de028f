// File: smplugin/ring_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package smplugin

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingPushPopFIFO(t *testing.T) {
	var r ring
	initRing(&r)

	require.True(t, r.push(packMsgHdr(msgHdr{Tag: 7, BufIndex: 1, Length: 10, SenderID: 2})))
	require.True(t, r.push(packMsgHdr(msgHdr{Tag: 8, BufIndex: 2, Length: 20, SenderID: 3})))

	v, ok := r.pop()
	require.True(t, ok)
	require.Equal(t, msgHdr{Tag: 7, BufIndex: 1, Length: 10, SenderID: 2}, unpackMsgHdr(v))

	v, ok = r.pop()
	require.True(t, ok)
	require.Equal(t, msgHdr{Tag: 8, BufIndex: 2, Length: 20, SenderID: 3}, unpackMsgHdr(v))

	_, ok = r.pop()
	require.False(t, ok)
}

func TestRingPopEmptyReturnsFalse(t *testing.T) {
	var r ring
	initRing(&r)
	require.True(t, r.isEmpty())
	_, ok := r.pop()
	require.False(t, ok)
}

func TestRingPushFailsWhenFull(t *testing.T) {
	var r ring
	initRing(&r)
	for i := 0; i < numSlots; i++ {
		require.True(t, r.push(uint64(i)))
	}
	require.False(t, r.push(999))
	require.Equal(t, uint64(1), r.drops.Load())
}

func TestRingConcurrentProducersConsumers(t *testing.T) {
	var r ring
	initRing(&r)

	const perProducer = numSlots / 4
	const producers = 4

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !r.push(packMsgHdr(msgHdr{Tag: uint32(i), BufIndex: uint8(p), Length: uint16(i), SenderID: uint8(p)})) {
				}
			}
		}(p)
	}
	wg.Wait()

	seen := 0
	for {
		_, ok := r.pop()
		if !ok {
			break
		}
		seen++
	}
	require.Equal(t, perProducer*producers, seen)
}

func TestMsgHdrPackRoundTrip(t *testing.T) {
	h := msgHdr{Tag: 0xdeadbeef, BufIndex: 255, Length: 65535, SenderID: 255}
	require.Equal(t, h, unpackMsgHdr(packMsgHdr(h)))
}
