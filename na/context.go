// File: na/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NA context: completion pipeline (spec §4.1), progress/poll-wait loop and
// multi-progress serialization (spec §4.2).

package na

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/na/naring"
)

// completionRingCapacity is the fixed, power-of-two completion ring size
// (spec §3 "a lock-free MPMC completion queue of capacity 1024
// fingerprints").
const completionRingCapacity = 1024

// Context is a per-thread-group progress domain over a Class (spec §3 "NA
// context").
type Context struct {
	class *Class
	id    uint8

	ring *naring.Queue[*OpID]

	overflowMu    sync.Mutex
	overflow      []*OpID
	overflowCount atomic.Int64

	// PluginContext is the plugin-private sub-context (e.g. SM's event
	// scratch buffer).
	PluginContext any

	progressing atomic.Int32 // >0 while a thread is inside plugin progress

	mp *multiProgress
}

// ContextCreate creates a context over class (spec §6 "context_create").
func ContextCreate(class *Class, id uint8) (*Context, error) {
	if err := class.acquireContextSlot(); err != nil {
		return nil, err
	}
	ctx := &Context{
		class: class,
		id:    id,
		ring:  naring.New[*OpID](completionRingCapacity),
		mp:    newMultiProgress(),
	}
	if class.ops != nil && class.ops.ContextCreate != nil {
		pc, err := class.ops.ContextCreate(class, id)
		if err != nil {
			class.releaseContextSlot()
			return nil, err
		}
		ctx.PluginContext = pc
	}
	return ctx, nil
}

// ContextDestroy destroys ctx. Fails Busy if the completion queue is
// non-empty or a thread is currently progressing it (spec §3 invariant).
func ContextDestroy(class *Class, ctx *Context) error {
	if ctx.CompletionCount() > 0 {
		return NewError("context_destroy", Busy)
	}
	if ctx.progressing.Load() > 0 {
		return NewError("context_destroy", Busy)
	}
	if class.ops != nil && class.ops.ContextDestroy != nil {
		if err := class.ops.ContextDestroy(class, ctx.PluginContext); err != nil {
			return err
		}
	}
	class.releaseContextSlot()
	return nil
}

// Class returns the context's owning class, for plugins that need to
// recover their own per-class state from a bare *Context (spec §3: a
// context is always created against exactly one class).
func (ctx *Context) Class() *Class { return ctx.class }

// pushCompletion is spec §4.1's complete(): the ring is tried first; on a
// full ring the record spills to the overflow FIFO under a spinlock with
// an atomic counter.
func (ctx *Context) pushCompletion(op *OpID) {
	if ctx.ring.Push(op) {
		return
	}
	ctx.overflowMu.Lock()
	ctx.overflow = append(ctx.overflow, op)
	ctx.overflowMu.Unlock()
	ctx.overflowCount.Add(1)
}

// CompletionCount returns ring_count + overflow_count (spec §4.1).
func (ctx *Context) CompletionCount() int {
	return ctx.ring.Count() + int(ctx.overflowCount.Load())
}

func (ctx *Context) popCompletion() (*OpID, bool) {
	if op, ok := ctx.ring.PopMC(); ok {
		return op, true
	}
	ctx.overflowMu.Lock()
	defer ctx.overflowMu.Unlock()
	if len(ctx.overflow) == 0 {
		return nil, false
	}
	op := ctx.overflow[0]
	ctx.overflow = ctx.overflow[1:]
	ctx.overflowCount.Add(-1)
	return op, true
}

// Trigger runs up to max queued completions' callbacks, plugin release
// first then user callback (spec §4.1). actual reports how many ran.
func (ctx *Context) Trigger(max int) (actual int, err error) {
	for actual < max {
		op, ok := ctx.popCompletion()
		if !ok {
			break
		}
		if op.PluginRelease != nil {
			op.PluginRelease(op)
		}
		if op.callback != nil {
			op.callback(op, op.result)
		}
		actual++
	}
	return actual, nil
}

// Poll drives one non-blocking progress cycle (spec §4.2 "poll(ctx,
// &count)").
func (ctx *Context) Poll() (count int, err error) {
	if ctx.class.ops == nil || ctx.class.ops.Poll == nil {
		return 0, NewError("poll", OpNotSupported)
	}
	ctx.progressing.Add(1)
	defer ctx.progressing.Add(-1)
	return ctx.class.ops.Poll(ctx)
}

// PollWait drives progress, blocking up to timeoutMs on the plugin's
// wakeable descriptor when possible (spec §4.2 "poll_wait"). It returns
// promptly if completions are already queued by shortening the blocking
// wait to zero internally.
func (ctx *Context) PollWait(timeoutMs int) (count int, err error) {
	if ctx.CompletionCount() > 0 {
		timeoutMs = 0
	}

	if !ctx.mp.enter(timeoutMs) {
		return 0, NewError("poll_wait", Timeout)
	}
	defer ctx.mp.exit()

	ctx.progressing.Add(1)
	defer ctx.progressing.Add(-1)

	if ctx.class.ops != nil && ctx.class.ops.PollWait != nil {
		return ctx.class.ops.PollWait(ctx, timeoutMs)
	}
	if ctx.class.ops == nil || ctx.class.ops.Poll == nil {
		return 0, NewError("poll_wait", OpNotSupported)
	}

	// Non-waitable plugin: busy-loop on Poll until the deadline elapses
	// (spec §4.2 "Timeout policy").
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		n, perr := ctx.class.ops.Poll(ctx)
		if perr != nil {
			return 0, perr
		}
		if n > 0 {
			return n, nil
		}
		if timeoutMs >= 0 && time.Now().After(deadline) {
			return 0, NewError("poll_wait", Timeout)
		}
		time.Sleep(time.Microsecond * 100)
	}
}

// Cancel requests cancellation of op (spec §4.2 "cancel"). Always
// idempotent; see OpID.tryCancel.
func Cancel(ctx *Context, op *OpID) Status {
	if ctx.class.ops != nil && ctx.class.ops.Cancel != nil {
		return ctx.class.ops.Cancel(ctx, op)
	}
	return op.tryCancel(nil)
}
