// File: na/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Plugin dispatch surface (spec §4.3): a vtable of up to ~40 operations.
// Each entry may be absent; the generic wrapper layer here validates
// arguments, logs at debug level, and forwards to the plugin, returning
// OpNotSupported when a required slot is missing. A couple of ops carry a
// core-provided fallback when the plugin leaves the slot empty, per spec.

package na

import (
	"fmt"

	"github.com/momentics/na/naconfig"
	"github.com/momentics/na/nalog"
)

// Ops is the plugin vtable. A concrete transport (e.g. smplugin) builds one
// of these and hands it to na.Initialize.
type Ops struct {
	// Lifecycle
	Initialize func(class *Class, protocol string, listen bool, info *naconfig.InitInfo) error
	Finalize   func(class *Class) error
	Cleanup    func()

	// Context
	ContextCreate  func(class *Class, id uint8) (any, error)
	ContextDestroy func(class *Class, pluginCtx any) error

	// Address
	AddrLookup      func(class *Class, name string) (*Address, error)
	AddrFree        func(addr *Address)
	AddrSelf        func(class *Class) (*Address, error)
	AddrDup         func(addr *Address) *Address
	AddrCmp         func(a, b *Address) bool
	AddrToString    func(addr *Address) (string, error)
	AddrSerialize   func(addr *Address) ([]byte, error)
	AddrDeserialize func(class *Class, data []byte) (*Address, error)

	// Op ID
	OpCreate  func(class *Class) any
	OpDestroy func(class *Class, pluginPrivate any)

	// Messaging
	MsgSendUnexpected func(ctx *Context, op *OpID) error
	MsgSendExpected   func(ctx *Context, op *OpID) error
	MsgRecvUnexpected func(ctx *Context, op *OpID) error
	MsgRecvExpected   func(ctx *Context, op *OpID) error
	MsgBufferAlloc    func(class *Class, size int) []byte

	// RMA
	MemHandleCreate         func(class *Class, buf []byte, flags AccessFlag) (*MemHandle, error)
	MemHandleCreateSegments func(class *Class, segs []IOV, flags AccessFlag) (*MemHandle, error)
	MemHandleFree           func(h *MemHandle)
	MemRegister             func(class *Class, h *MemHandle) error
	Put                     func(ctx *Context, op *OpID) error
	Get                     func(ctx *Context, op *OpID) error

	// Progress
	PollGetFD   func(ctx *Context) (fd int, ok bool)
	PollTryWait func(ctx *Context) bool
	Poll        func(ctx *Context) (count int, err error)
	PollWait    func(ctx *Context, timeoutMs int) (count int, err error)

	// Cancel
	Cancel func(ctx *Context, op *OpID) Status
}

// checkOp logs at debug level and returns OpNotSupported if present is
// false, matching spec §4.3's "generic wrapper layer validates arguments,
// logs at debug level, and forwards to the plugin" contract.
func checkOp(name string, present bool) error {
	nalog.Debug("dispatch", "op", name)
	if !present {
		return NewError(name, OpNotSupported)
	}
	return nil
}

// allocMsgBuffer returns a buffer of size bytes via the plugin's allocator,
// falling back to a plain make() when the plugin leaves the slot empty
// (spec §4.3 "the wrapper provides a fallback implementation").
func (c *Class) allocMsgBuffer(size int) []byte {
	if c.ops != nil && c.ops.MsgBufferAlloc != nil {
		return c.ops.MsgBufferAlloc(c, size)
	}
	return make([]byte, size)
}

// addrToStringFallback formats "<class>:<key>" when the plugin does not
// implement AddrToString (spec §4.3 fallback; spec §6 "<class>:<addr>").
func addrToStringFallback(class *Class, addr *Address) string {
	return fmt.Sprintf("%s:%v", class.Protocol, addr.Key)
}
