// File: smplugin/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared-memory message/command rings (spec §4.6): a FreeBSD buf_ring-
// style Lamport MPMC ring with producer state and consumer state kept on
// separate cache lines, distinct from naring.Queue's Vyukov design. These
// rings live inside a mapped Region and must use only fixed-size,
// pointer-free fields so the layout is valid across process boundaries.

package smplugin

import "sync/atomic"

const ringCacheLinePad = 64

// numSlots is the fixed ring capacity (spec §4.6: sized to the copy
// buffer pool so every in-flight message has a slot).
const numSlots = numCopyBufs

// msgHdr is one packed message-queue entry, matching na_sm.c's 64-bit
// header layout (tag:32, buf_size:16, buf_idx:8, type:8) with the final
// byte carrying the sending endpoint's short id instead of a wire type
// discriminant — expected vs. unexpected is already determined by which
// queue pair the entry arrived on, so that slot is repurposed so the
// receiver can identify the peer without a prior resolved connection.
type msgHdr struct {
	Tag      uint32
	Length   uint16
	BufIndex uint8
	SenderID uint8
}

// ring is the producer/consumer ring shared by msg and cmd queues. Slot
// storage is a fixed array of uint64 (msgHdr packed, or a cmdHdr's raw
// bits for the command queue) so the struct remains a flat, relocatable
// shared-memory layout.
type ring struct {
	prodHead atomic.Uint32
	prodTail atomic.Uint32
	_        [ringCacheLinePad - 8]byte

	consHead atomic.Uint32
	consTail atomic.Uint32
	_        [ringCacheLinePad - 8]byte

	mask uint32
	drops atomic.Uint64

	slots [numSlots]atomic.Uint64
}

func initRing(r *ring) {
	r.mask = numSlots - 1
}

// push enqueues val (a packed 64-bit record). Returns false on a full
// ring, incrementing the drop counter (spec §4.6 "drops").
func (r *ring) push(val uint64) bool {
	for {
		prodHead := r.prodHead.Load()
		consTail := r.consTail.Load()
		if prodHead-consTail >= numSlots {
			r.drops.Add(1)
			return false
		}
		if r.prodHead.CompareAndSwap(prodHead, prodHead+1) {
			r.slots[prodHead&r.mask].Store(val)
			// Spin until prior producers have published, then advance tail
			// (Lamport two-phase commit, matching FreeBSD buf_ring).
			for !r.prodTail.CompareAndSwap(prodHead, prodHead+1) {
			}
			return true
		}
	}
}

// pop dequeues the oldest record. Multi-consumer safe.
func (r *ring) pop() (uint64, bool) {
	for {
		consHead := r.consHead.Load()
		prodTail := r.prodTail.Load()
		if consHead == prodTail {
			return 0, false
		}
		if r.consHead.CompareAndSwap(consHead, consHead+1) {
			val := r.slots[consHead&r.mask].Load()
			for !r.consTail.CompareAndSwap(consHead, consHead+1) {
			}
			return val, true
		}
	}
}

func (r *ring) isEmpty() bool {
	return r.consHead.Load() == r.prodTail.Load()
}

func packMsgHdr(h msgHdr) uint64 {
	return uint64(h.Tag) | uint64(h.Length)<<32 | uint64(h.BufIndex)<<48 | uint64(h.SenderID)<<56
}

func unpackMsgHdr(v uint64) msgHdr {
	return msgHdr{
		Tag:      uint32(v),
		Length:   uint16(v >> 32),
		BufIndex: uint8(v >> 48),
		SenderID: uint8(v >> 56),
	}
}
