// File: na/memhandle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Memory handle / RMA descriptor (spec §3 "Memory handle (RMA)").

package na

import (
	"encoding/binary"
	"unsafe"
)

// AccessFlag describes the permissible direction of one-sided access.
type AccessFlag int

const (
	ReadOnly AccessFlag = iota
	WriteOnly
	ReadWrite
)

// inlineIOVCount is the number of IOV segments kept inline before
// spilling to a heap-allocated slice (spec §3: "Small IOVs (<= 8
// segments) live inline; larger use a heap array").
const inlineIOVCount = 8

// IOV is one segment of a scatter/gather memory description.
type IOV struct {
	Base []byte
	Len  uint64
}

// MemHandle describes a local buffer or scatter/gather list registered
// for one-sided access (spec §3). It can be serialized for transmission
// to a peer and later deserialized into a remote handle bound to the
// same peer address.
type MemHandle struct {
	Access AccessFlag

	inline  [inlineIOVCount]IOV
	count   int
	overflow []IOV // used only when count > inlineIOVCount

	// Addr is set on a deserialized (remote) handle to bind it to the peer
	// that produced it; nil on a locally registered handle.
	Addr *Address
}

// NewMemHandle registers a single contiguous buffer.
func NewMemHandle(buf []byte, access AccessFlag) *MemHandle {
	h := &MemHandle{Access: access}
	h.appendSegment(IOV{Base: buf, Len: uint64(len(buf))})
	return h
}

// NewMemHandleSegments registers a scatter/gather list.
func NewMemHandleSegments(segs []IOV, access AccessFlag) *MemHandle {
	h := &MemHandle{Access: access}
	for _, s := range segs {
		h.appendSegment(s)
	}
	return h
}

func (h *MemHandle) appendSegment(seg IOV) {
	if h.count < inlineIOVCount {
		h.inline[h.count] = seg
	} else {
		h.overflow = append(h.overflow, seg)
	}
	h.count++
}

// IOVCount returns the number of segments.
func (h *MemHandle) IOVCount() int { return h.count }

// Segment returns the i'th IOV segment (0-indexed).
func (h *MemHandle) Segment(i int) IOV {
	if i < inlineIOVCount {
		return h.inline[i]
	}
	return h.overflow[i-inlineIOVCount]
}

// Segments returns all segments as a single slice (allocates when the
// handle has spilled to the heap array; cheap for the common inline case).
func (h *MemHandle) Segments() []IOV {
	out := make([]IOV, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.Segment(i)
	}
	return out
}

// TotalLength sums the lengths of all segments.
func (h *MemHandle) TotalLength() uint64 {
	var total uint64
	for i := 0; i < h.count; i++ {
		total += h.Segment(i).Len
	}
	return total
}

// SerializedSize returns the byte size Serialize will produce: a 1-byte
// access flag, a 4-byte segment count, then 16 bytes per segment (8-byte
// virtual address, 8-byte length). The address is this process's own
// pointer value; a receiving peer never dereferences it, it only hands it
// to a cross-memory-attach call (e.g. smplugin's process_vm_readv/writev)
// as a remote address inside this process.
func (h *MemHandle) SerializedSize() int {
	return 1 + 4 + 16*h.count
}

// Serialize encodes the handle for transmission to a peer (spec §3
// "serialized to a byte buffer"; spec §6 "mem_handle_serialize").
func (h *MemHandle) Serialize() []byte {
	buf := make([]byte, h.SerializedSize())
	buf[0] = byte(h.Access)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(h.count))
	off := 5
	for i := 0; i < h.count; i++ {
		seg := h.Segment(i)
		var addr uint64
		if len(seg.Base) > 0 {
			addr = uint64(uintptr(unsafe.Pointer(&seg.Base[0])))
		}
		binary.LittleEndian.PutUint64(buf[off:off+8], addr)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], seg.Len)
		off += 16
	}
	return buf
}

// DeserializeMemHandle decodes a handle produced by Serialize, binding it
// to addr (the peer that owns the underlying memory). Each segment's Base
// is reconstructed from the transmitted address: it is never dereferenced
// in this process directly, only handed to a transport (e.g. smplugin's
// process_vm_readv/writev) that interprets it as a remote virtual address.
func DeserializeMemHandle(data []byte, addr *Address) (*MemHandle, error) {
	if len(data) < 5 {
		return nil, NewError("mem_handle_deserialize", InvalidArg)
	}
	access := AccessFlag(data[0])
	count := int(binary.LittleEndian.Uint32(data[1:5]))
	need := 5 + 16*count
	if len(data) < need {
		return nil, NewError("mem_handle_deserialize", InvalidArg)
	}
	h := &MemHandle{Access: access, Addr: addr}
	off := 5
	for i := 0; i < count; i++ {
		remoteAddr := binary.LittleEndian.Uint64(data[off : off+8])
		length := binary.LittleEndian.Uint64(data[off+8 : off+16])
		h.appendSegment(IOV{Base: remoteBaseView(remoteAddr, length), Len: length})
		off += 16
	}
	return h, nil
}

// remoteBaseView builds a []byte header over a raw remote address without
// ever reading through it locally; its only legitimate use is as a Base
// value handed to a transport syscall that takes the address, not the
// bytes. A zero address or length yields nil, matching an empty segment.
func remoteBaseView(addr, length uint64) []byte {
	if addr == 0 || length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), int(length))
}
