// File: smplugin/copybuf.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Copy-buffer pool (spec §4.7): a fixed pool of page-sized buffers,
// indexed by a CAS bitmap so a slot index can be handed across process
// boundaries through the msg ring instead of a pointer.

package smplugin

import (
	"math/bits"
	"sync/atomic"
)

// numCopyBufs is the pool size (spec §4.7 "64-buffer bitmap pool").
const numCopyBufs = 64

// copyBufSize is the per-slot payload capacity.
const copyBufSize = 4096

// noBufIndex marks a msgHdr that carries no copy-buffer slot: a
// zero-length send reserves no buffer at all (spec §8 "Send of size 0
// succeeds without reserving a copy buffer"). numCopyBufs is 64, so this
// value can never collide with a real slot index.
const noBufIndex uint8 = 0xFF

// copyBufPool is the shared-memory-resident pool embedded in a Region.
// available is a bitmask: bit i set means slot i is free.
type copyBufPool struct {
	available atomic.Uint64
	bufs      [numCopyBufs][copyBufSize]byte
}

func initCopyBufPool(p *copyBufPool) {
	p.available.Store(^uint64(0))
}

// acquire reserves one free slot via CAS, returning its index. ok is
// false when the pool is exhausted.
func (p *copyBufPool) acquire() (index int, ok bool) {
	for {
		avail := p.available.Load()
		if avail == 0 {
			return 0, false
		}
		i := bits.TrailingZeros64(avail)
		next := avail &^ (uint64(1) << uint(i))
		if p.available.CompareAndSwap(avail, next) {
			return i, true
		}
	}
}

// release returns slot index to the pool.
func (p *copyBufPool) release(index int) {
	for {
		avail := p.available.Load()
		next := avail | (uint64(1) << uint(index))
		if p.available.CompareAndSwap(avail, next) {
			return
		}
	}
}

func (p *copyBufPool) slot(index int) []byte {
	return p.bufs[index][:]
}
