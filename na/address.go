// File: na/address.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Address handle (spec §3 "Address").

package na

import (
	"sync"
	"sync/atomic"
)

// AddrState is the resolution-state bitset of spec §3: an address
// transitions 0 -> Reserved -> (Reserved|CmdPushed) -> Resolved exactly
// once; transitions back only at teardown.
type AddrState uint32

const (
	AddrReserved AddrState = 1 << iota
	AddrCmdPushed
	AddrResolved
)

// Address is the per-peer handle owned by its originating class/endpoint
// (spec §3 "Address"). Plugins attach transport-specific resources via
// PluginData; the core only manages the reference count, resolution
// state, and URI caching common to every transport.
type Address struct {
	class *Class

	// Key is the plugin-specific peer key (for SM, a (pid, id) pair). It
	// must be comparable so it can key the endpoint's address map.
	Key any

	uriMu sync.Mutex
	uri   string // generated lazily via the plugin's address-to-string op

	state atomic.Uint32
	refs  atomic.Int32

	resolveMu sync.Mutex // guards state transitions only

	// PluginData holds transport-specific resources: for SM, the shared
	// region pointer, queue-pair index, rx/tx notification descriptors,
	// and poll-type tags (spec §3).
	PluginData any
}

// NewAddress allocates an address with the given plugin-specific key and a
// starting reference count of 1, per invariant 2 ("ref_count(A) >= ... ";
// "while any op ID references the address").
func NewAddress(class *Class, key any) *Address {
	a := &Address{class: class, Key: key}
	a.refs.Store(1)
	return a
}

// State returns the current resolution-state bitset.
func (a *Address) State() AddrState {
	return AddrState(a.state.Load())
}

// IsResolved reports whether the Resolved bit is set.
func (a *Address) IsResolved() bool {
	return a.State()&AddrResolved != 0
}

// BeginResolve acquires the per-address resolution mutex. Callers must
// Unlock via EndResolve. Per spec §4.5, "Acquiring a lock on the address
// is required only when transitioning" — callers that only read state use
// State()/IsResolved() without locking.
func (a *Address) BeginResolve() { a.resolveMu.Lock() }

// EndResolve releases the resolution mutex.
func (a *Address) EndResolve() { a.resolveMu.Unlock() }

// SetState overwrites the resolution-state bitset. Must be called with the
// resolution mutex held (BeginResolve/EndResolve).
func (a *Address) SetState(s AddrState) {
	a.state.Store(uint32(s))
}

// OrState ORs bits into the resolution-state bitset under the resolution
// mutex.
func (a *Address) OrState(bits AddrState) {
	for {
		cur := a.state.Load()
		if a.state.CompareAndSwap(cur, cur|uint32(bits)) {
			return
		}
	}
}

// incRef increments the reference count (spec invariant 2). Held while any
// op ID references the address or it is in the endpoint's poll set.
func (a *Address) incRef() { a.refs.Add(1) }

// decRef decrements the reference count, freeing the address via the
// plugin's Free op when it reaches zero (exactly once, per invariant 2).
func (a *Address) decRef() {
	if a.refs.Add(-1) == 0 {
		if a.class != nil && a.class.ops != nil && a.class.ops.AddrFree != nil {
			a.class.ops.AddrFree(a)
		}
	}
}

// RefCount returns the current reference count (diagnostics only).
func (a *Address) RefCount() int32 { return a.refs.Load() }

// Dup increments the reference count and returns the same address,
// matching the na_addr_dup contract (spec §6 "Address ops: ... dup").
func (a *Address) Dup() *Address {
	a.incRef()
	return a
}

// Free decrements the reference count, as a direct caller-facing release
// (spec §6 "Address ops: ... free"). This is the consumer API's Free;
// internal op-ID bookkeeping uses decRef directly.
func (a *Address) Free() {
	a.decRef()
}

// ToString returns the cached URI if present, otherwise lazily generates
// it via the plugin (or the wrapper fallback), per spec §4.3 ("For a few
// ops ... address-to-string ... the wrapper provides a fallback
// implementation when the plugin leaves the slot empty").
func (a *Address) ToString() (string, error) {
	a.uriMu.Lock()
	defer a.uriMu.Unlock()
	if a.uri != "" {
		return a.uri, nil
	}
	if a.class != nil && a.class.ops != nil && a.class.ops.AddrToString != nil {
		s, err := a.class.ops.AddrToString(a)
		if err != nil {
			return "", err
		}
		a.uri = s
		return s, nil
	}
	if a.class == nil {
		return "", NewError("addr_to_string", OpNotSupported)
	}
	a.uri = addrToStringFallback(a.class, a)
	return a.uri, nil
}
