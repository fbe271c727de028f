// File: namem/hugepage.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Best-effort huge-page allocation. Platform-specific backends live in
// hugepage_linux.go / hugepage_other.go; this file only declares the
// cross-platform contract.

package namem

// HugePageAlloc attempts to allocate size bytes backed by huge pages.
// On platforms/configurations where huge pages are unavailable it returns
// (nil, false) rather than an error — callers must fall back to a regular
// AlignedAlloc.
func HugePageAlloc(size int) ([]byte, bool) {
	return hugePageAllocPlatform(size)
}

// HugePageFree releases memory obtained from HugePageAlloc. A no-op if buf
// did not come from the huge-page backend (best effort, mirrors the
// platform alloc's own best-effort contract).
func HugePageFree(buf []byte) {
	hugePageFreePlatform(buf)
}
