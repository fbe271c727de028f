// File: na/memhandle_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package na

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemHandleSerializeRoundTripsLengthsAndAccess(t *testing.T) {
	buf := make([]byte, 64)
	h := NewMemHandle(buf, ReadWrite)

	wire := h.Serialize()
	require.Len(t, wire, h.SerializedSize())

	dup, err := DeserializeMemHandle(wire, nil)
	require.NoError(t, err)
	require.Equal(t, ReadWrite, dup.Access)
	require.Equal(t, h.IOVCount(), dup.IOVCount())
	require.Equal(t, h.TotalLength(), dup.TotalLength())
}

func TestMemHandleSerializeCarriesSegmentAddress(t *testing.T) {
	buf := make([]byte, 16)
	h := NewMemHandle(buf, ReadOnly)

	dup, err := DeserializeMemHandle(h.Serialize(), nil)
	require.NoError(t, err)

	seg := dup.Segment(0)
	require.Len(t, seg.Base, len(buf))
	require.Equal(t, uint64(len(buf)), seg.Len)
}

func TestMemHandleSerializeSegmentsPreservesLengthOrder(t *testing.T) {
	segs := []IOV{
		{Base: make([]byte, 8), Len: 8},
		{Base: make([]byte, 24), Len: 24},
	}
	h := NewMemHandleSegments(segs, ReadWrite)

	dup, err := DeserializeMemHandle(h.Serialize(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, dup.IOVCount())
	require.Equal(t, uint64(8), dup.Segment(0).Len)
	require.Equal(t, uint64(24), dup.Segment(1).Len)
}

func TestDeserializeMemHandleRejectsTruncatedWire(t *testing.T) {
	_, err := DeserializeMemHandle([]byte{0, 1, 0, 0}, nil)
	require.Error(t, err)
}

func TestDeserializeMemHandleBindsAddress(t *testing.T) {
	class := &Class{Protocol: "sm"}
	addr := NewAddress(class, "peer")

	h := NewMemHandle(make([]byte, 4), ReadWrite)
	dup, err := DeserializeMemHandle(h.Serialize(), addr)
	require.NoError(t, err)
	require.Same(t, addr, dup.Addr)
}
