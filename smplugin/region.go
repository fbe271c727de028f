// File: smplugin/region.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared region layout (spec §3 "Shared region", §4.4), grounded on
// na_sm.c's struct na_sm_region: a copy buffer pool, a fixed array of
// queue pairs (one per reserved peer slot), and a control-command queue,
// all laid out contiguously inside one mmap'd file so every attaching
// process sees identical offsets.

package smplugin

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// maxPeers bounds the number of queue pairs a region reserves, mirroring
// na_sm.c's NA_SM_MAX_PEERS.
const maxPeers = 32

// unexpectedPair is a well-known queue-pair index permanently reserved
// for unexpected-message traffic (spec §4.7 "unexpected message queue"),
// never handed out by queuePairReserve.
const unexpectedPair uint8 = 0

// queuePair holds one peer's send/recv message rings.
type queuePair struct {
	tx ring
	rx ring
}

// region is the full shared-memory layout. It is allocated inside a
// memory-mapped file (see regionCreate/regionOpen) and must contain only
// fixed-size fields: no pointers, no slices, no maps.
type region struct {
	copyBufs   copyBufPool
	queuePairs [maxPeers]queuePair
	cmdQueue   ring
	available  atomic.Uint64 // bitmap of free queue-pair slots, one bit per maxPeers index
}

// regionSize is the byte size of one region, used to size the backing
// shared-memory file.
var regionSize = int(unsafe.Sizeof(region{}))

func initRegion(r *region) {
	initCopyBufPool(&r.copyBufs)
	for i := range r.queuePairs {
		initRing(&r.queuePairs[i].tx)
		initRing(&r.queuePairs[i].rx)
	}
	initRing(&r.cmdQueue)
	r.available.Store((uint64(1)<<maxPeers - 1) &^ (uint64(1) << unexpectedPair))
}

// queuePairReserve claims a free queue-pair slot via CAS (spec §4.5
// "Reserved" transition), returning its index.
func queuePairReserve(r *region) (index uint8, ok bool) {
	for {
		avail := r.available.Load()
		if avail == 0 {
			return 0, false
		}
		i := bits.TrailingZeros64(avail)
		next := avail &^ (uint64(1) << uint(i))
		if r.available.CompareAndSwap(avail, next) {
			return uint8(i), true
		}
	}
}

// queuePairRelease returns a queue-pair slot to the free bitmap.
func queuePairRelease(r *region, index uint8) {
	for {
		avail := r.available.Load()
		next := avail | (uint64(1) << uint(index))
		if r.available.CompareAndSwap(avail, next) {
			return
		}
	}
}

// asRegion reinterprets a raw mmap'd byte slice as a *region. buf must be
// at least regionSize bytes and must outlive the returned pointer (it
// stays backed by the mmap until the owning ShmRegion is closed).
func asRegion(buf []byte) *region {
	if len(buf) < regionSize {
		panic("smplugin: shared-memory mapping smaller than region size")
	}
	return (*region)(unsafe.Pointer(&buf[0]))
}
