//go:build !linux

// File: namem/hugepage_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux platforms have no portable huge-page API reachable without
// cgo; always report unavailable so callers fall back to AlignedAlloc.

package namem

func hugePageAllocPlatform(_ int) ([]byte, bool) { return nil, false }

func hugePageFreePlatform(_ []byte) {}
