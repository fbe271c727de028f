// File: na/opid.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Op ID lifecycle (spec §3 "Op ID", §4.1 "Op ID rules").

package na

import (
	"sync/atomic"

	"github.com/momentics/na/nalog"
)

// CallbackKind identifies which operation an OpID is bound to.
type CallbackKind int

const (
	KindNone CallbackKind = iota
	KindSendUnexpected
	KindSendExpected
	KindRecvUnexpected
	KindRecvExpected
	KindPut
	KindGet
)

// opStatus is a bitset; OpID.status is an atomic uint32 holding these bits.
type opStatus uint32

const (
	statusCompleted opStatus = 1 << iota
	statusRetrying
	statusCanceled
	statusQueued
	statusErrored
)

// Callback is invoked from Context.Trigger with the op's final status.
type Callback func(op *OpID, result Status)

// OpID is the caller-allocated handle for one outstanding operation
// (spec §3 "Op ID"). Callers must not construct it directly: use
// Class.OpCreate.
type OpID struct {
	class *Class

	status atomic.Uint32

	callback Callback
	userArg  any
	kind     CallbackKind

	// PluginRelease, when set, is invoked by Trigger before callback — the
	// plugin's chance to recycle resources (e.g. a copy-buffer slot)
	// before the user callback observes the op ID (spec §4.1 "plugin
	// first, user second").
	PluginRelease func(op *OpID)

	// Op-kind-specific fields (spec §3: "buffer pointer, size, tag; or RMA
	// descriptors"). Only the fields relevant to kind are meaningful.
	Buf     []byte
	Tag     uint32
	Local   *MemHandle
	Remote  *MemHandle
	LocalOff, RemoteOff, Length uint64
	RemoteID uint8

	// ActualLength and Source are recv-result outputs (spec §4.7
	// "progress_rx_queue"/§6): the number of bytes actually copied into
	// Buf, and the short id of the peer that sent the message. Both are
	// set by the plugin only when it completes a recv op with Success.
	ActualLength uint64
	Source       uint8

	// Back-pointer to owning context and (for send/recv) target address.
	ctx  *Context
	Addr *Address

	// result carries the status delivered to the callback; set by complete.
	result Status

	// pluginPrivate lets the bound plugin stash per-op state (e.g. the SM
	// buffer index reserved for an in-flight send) without the core needing
	// to know its shape.
	pluginPrivate any
}

// newOpID allocates an OpID in the legal pre-submit state: Completed set,
// per spec §4.1 "Op-create returns a fresh op ID whose Completed bit is
// pre-set."
func newOpID(class *Class) *OpID {
	op := &OpID{class: class}
	op.status.Store(uint32(statusCompleted))
	return op
}

// IsCompleted reports whether the op is currently idle and reusable.
func (op *OpID) IsCompleted() bool {
	return opStatus(op.status.Load())&statusCompleted != 0
}

// reset clears status to zero and installs the fields for a new
// submission. Returns a Busy *Error if the op is not currently Completed
// (spec §4.1 "Any submit path must observe Completed set; otherwise fails
// Busy").
func (op *OpID) reset(ctx *Context, kind CallbackKind, cb Callback, arg any, addr *Address) error {
	cur := opStatus(op.status.Load())
	if cur&statusCompleted == 0 {
		return NewError("op_submit", Busy)
	}
	if !op.status.CompareAndSwap(uint32(cur), 0) {
		return NewError("op_submit", Busy)
	}
	op.ctx = ctx
	op.kind = kind
	op.callback = cb
	op.userArg = arg
	op.result = Success
	if addr != nil {
		addr.incRef()
	}
	if op.Addr != nil {
		op.Addr.decRef()
	}
	op.Addr = addr
	op.pluginPrivate = nil
	return nil
}

// markQueued marks the op as parked on a plugin-internal queue (unexpected
// recv, expected recv, retry queue).
func (op *OpID) markQueued() {
	op.orStatus(statusQueued)
}

func (op *OpID) clearQueued() {
	op.andNotStatus(statusQueued)
}

// MarkRetrying sets the Retrying bit; used by the SM retry queue (§4.9) so
// a concurrent Cancel observes the in-flight retry rather than yanking the
// op out from under it.
func (op *OpID) MarkRetrying() { op.orStatus(statusRetrying) }

// ClearRetrying clears the Retrying bit.
func (op *OpID) ClearRetrying() { op.andNotStatus(statusRetrying) }

// IsRetrying reports the Retrying bit.
func (op *OpID) IsRetrying() bool {
	return opStatus(op.status.Load())&statusRetrying != 0
}

// IsCanceled reports whether Cancel landed on this op.
func (op *OpID) IsCanceled() bool {
	return opStatus(op.status.Load())&statusCanceled != 0
}

// IsQueued reports whether the op currently sits on a plugin-internal
// queue (spec invariant 6: "Completed ops are never on any plugin-internal
// queue").
func (op *OpID) IsQueued() bool {
	return opStatus(op.status.Load())&statusQueued != 0
}

func (op *OpID) orStatus(bit opStatus) {
	for {
		cur := op.status.Load()
		if op.status.CompareAndSwap(cur, cur|uint32(bit)) {
			return
		}
	}
}

func (op *OpID) andNotStatus(bit opStatus) {
	for {
		cur := op.status.Load()
		if op.status.CompareAndSwap(cur, cur&^uint32(bit)) {
			return
		}
	}
}

// complete transitions the op to Completed with the given result and
// enqueues it on the owning context's completion pipeline. Per spec §4.1,
// Completed is set before the callback record is made visible to Trigger.
func (op *OpID) complete(result Status) {
	op.result = result
	op.clearQueued()
	op.andNotStatus(statusRetrying)
	op.orStatus(statusCompleted)
	if op.ctx != nil {
		op.ctx.pushCompletion(op)
	}
}

// Complete is the plugin-facing entry point for finishing an op
// (spec §4.1): plugins call this from their own completion path (an
// inline synchronous finish, a retry-queue drain, or an async notify
// callback) to transition the op to Completed and enqueue it on its
// owning context.
func (op *OpID) Complete(result Status) { op.complete(result) }

// TryCancel is the plugin-facing idempotent cancel entry point for
// plugins that have no dedicated internal queue to pull the op from
// (e.g. one already handed off to a retry loop that checks IsCanceled
// itself on its next attempt).
func (op *OpID) TryCancel() Status { return op.tryCancel(nil) }

// tryCancel is the core of spec §4.2 Cancel: idempotent, and only able to
// pull an op off a plugin-internal queue. removeFromQueue is supplied by
// the plugin (nil if the op kind has no associated queue); it should
// return true if it actually removed the op.
func (op *OpID) tryCancel(removeFromQueue func(*OpID) bool) Status {
	cur := opStatus(op.status.Load())
	if cur&(statusCompleted|statusErrored|statusCanceled) != 0 {
		return Success
	}
	op.orStatus(statusCanceled)

	if op.IsRetrying() {
		// Retry loop (§4.9) honors Canceled on its next iteration; do not
		// remove here to avoid racing its in-flight retry attempt.
		return Success
	}
	if removeFromQueue != nil && removeFromQueue(op) {
		op.complete(Canceled)
	}
	return Success
}

// destroy releases an op ID. Per spec §4.1, destroying a non-Completed op
// is only a logged warning, not a hard failure (the contract describes
// resource safety, not an error return).
func (op *OpID) destroy() {
	if !op.IsCompleted() {
		nalog.Warn("op_destroy: op ID destroyed while not Completed", "kind", op.kind)
	}
	if op.Addr != nil {
		op.Addr.decRef()
		op.Addr = nil
	}
}

// Result returns the status delivered (or to be delivered) to the op's
// callback.
func (op *OpID) Result() Status { return op.result }

// PluginPrivate returns the plugin-private per-op state slot.
func (op *OpID) PluginPrivate() any { return op.pluginPrivate }

// SetPluginPrivate stores plugin-private per-op state.
func (op *OpID) SetPluginPrivate(v any) { op.pluginPrivate = v }

// Kind returns the expected callback kind this op was submitted with.
func (op *OpID) Kind() CallbackKind { return op.kind }

// UserArg returns the caller-supplied argument passed at submission.
func (op *OpID) UserArg() any { return op.userArg }
