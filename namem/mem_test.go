package namem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAlignedAllocAlignment(t *testing.T) {
	for _, align := range []int{8, 16, 64, PageSize} {
		buf := AlignedAlloc(128, align)
		require.Len(t, buf, 128)
		addr := uintptr(unsafe.Pointer(&buf[0]))
		require.Zero(t, addr%uintptr(align), "align=%d", align)
	}
}

func TestRequestRecordSplitsContiguousBuffer(t *testing.T) {
	rr := NewRequestRecord(16, 64)
	require.Len(t, rr.Header, 16)
	require.Len(t, rr.Payload, 64)
	require.Len(t, rr.Bytes(), 80)

	rr.Header[0] = 0xAB
	require.Equal(t, byte(0xAB), rr.Bytes()[0])
	rr.Payload[0] = 0xCD
	require.Equal(t, byte(0xCD), rr.Bytes()[16])
}
