// File: na/consumer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Top-level consumer API (spec §6): the thin, synchronous-looking wrapper
// a caller uses to drive address resolution, messaging, and RMA. Every
// call here submits an op ID and returns immediately; the caller learns
// the outcome from the callback passed in, invoked later from
// Context.Trigger.

package na

// Lookup resolves name to an Address on class (spec §6 "addr_lookup") by
// forwarding to the plugin's AddrLookup; it does not drive progress
// itself. The SM plugin's lookup runs the control-channel handshake
// synchronously, so the caller sees a synchronous result.
func Lookup(class *Class, name string) (*Address, error) {
	if err := checkOp("addr_lookup", class.ops != nil && class.ops.AddrLookup != nil); err != nil {
		return nil, err
	}
	return class.ops.AddrLookup(class, name)
}

// Self returns the class's own local address (spec §6 "addr_self").
func Self(class *Class) (*Address, error) {
	if err := checkOp("addr_self", class.ops != nil && class.ops.AddrSelf != nil); err != nil {
		return nil, err
	}
	return class.ops.AddrSelf(class)
}

// AddrSerialize encodes addr for out-of-band exchange (spec §6
// "addr_serialize").
func AddrSerialize(addr *Address) ([]byte, error) {
	if err := checkOp("addr_serialize", addr.class != nil && addr.class.ops != nil && addr.class.ops.AddrSerialize != nil); err != nil {
		return nil, err
	}
	return addr.class.ops.AddrSerialize(addr)
}

// AddrDeserialize decodes bytes produced by AddrSerialize (spec §6
// "addr_deserialize").
func AddrDeserialize(class *Class, data []byte) (*Address, error) {
	if err := checkOp("addr_deserialize", class.ops != nil && class.ops.AddrDeserialize != nil); err != nil {
		return nil, err
	}
	return class.ops.AddrDeserialize(class, data)
}

// MsgSendUnexpected posts a send that the peer has not pre-posted a
// matching recv for (spec §6 "msg_send_unexpected").
func MsgSendUnexpected(ctx *Context, op *OpID, addr *Address, buf []byte, tag uint32, cb Callback, arg any) error {
	if err := op.reset(ctx, KindSendUnexpected, cb, arg, addr); err != nil {
		return err
	}
	op.Buf, op.Tag = buf, tag
	if err := checkOp("msg_send_unexpected", ctx.class.ops != nil && ctx.class.ops.MsgSendUnexpected != nil); err != nil {
		op.complete(OpNotSupported)
		return err
	}
	return ctx.class.ops.MsgSendUnexpected(ctx, op)
}

// MsgSendExpected posts a send matched against a recv the peer already
// posted (spec §6 "msg_send_expected").
func MsgSendExpected(ctx *Context, op *OpID, addr *Address, buf []byte, tag uint32, cb Callback, arg any) error {
	if err := op.reset(ctx, KindSendExpected, cb, arg, addr); err != nil {
		return err
	}
	op.Buf, op.Tag = buf, tag
	if err := checkOp("msg_send_expected", ctx.class.ops != nil && ctx.class.ops.MsgSendExpected != nil); err != nil {
		op.complete(OpNotSupported)
		return err
	}
	return ctx.class.ops.MsgSendExpected(ctx, op)
}

// MsgRecvUnexpected posts a buffer to receive the next unexpected message
// from any peer (spec §6 "msg_recv_unexpected").
func MsgRecvUnexpected(ctx *Context, op *OpID, buf []byte, cb Callback, arg any) error {
	if err := op.reset(ctx, KindRecvUnexpected, cb, arg, nil); err != nil {
		return err
	}
	op.Buf = buf
	if err := checkOp("msg_recv_unexpected", ctx.class.ops != nil && ctx.class.ops.MsgRecvUnexpected != nil); err != nil {
		op.complete(OpNotSupported)
		return err
	}
	return ctx.class.ops.MsgRecvUnexpected(ctx, op)
}

// MsgRecvExpected posts a buffer to receive a specific tagged message from
// addr (spec §6 "msg_recv_expected").
func MsgRecvExpected(ctx *Context, op *OpID, addr *Address, buf []byte, tag uint32, cb Callback, arg any) error {
	if err := op.reset(ctx, KindRecvExpected, cb, arg, addr); err != nil {
		return err
	}
	op.Buf, op.Tag = buf, tag
	if err := checkOp("msg_recv_expected", ctx.class.ops != nil && ctx.class.ops.MsgRecvExpected != nil); err != nil {
		op.complete(OpNotSupported)
		return err
	}
	return ctx.class.ops.MsgRecvExpected(ctx, op)
}

// MsgBufferAlloc returns a send/recv buffer of size bytes, via the
// plugin's allocator when it has one (spec §6 "msg_buffer_alloc").
func MsgBufferAlloc(class *Class, size int) []byte {
	return class.allocMsgBuffer(size)
}

// MemHandleCreate registers buf for one-sided access (spec §6
// "mem_handle_create").
func MemHandleCreate(class *Class, buf []byte, flags AccessFlag) (*MemHandle, error) {
	if class.ops != nil && class.ops.MemHandleCreate != nil {
		return class.ops.MemHandleCreate(class, buf, flags)
	}
	h := NewMemHandle(buf, flags)
	if class.ops != nil && class.ops.MemRegister != nil {
		if err := class.ops.MemRegister(class, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// MemHandleCreateSegments registers a scatter/gather list (spec §6
// "mem_handle_create_segments").
func MemHandleCreateSegments(class *Class, segs []IOV, flags AccessFlag) (*MemHandle, error) {
	if class.ops != nil && class.ops.MemHandleCreateSegments != nil {
		return class.ops.MemHandleCreateSegments(class, segs, flags)
	}
	h := NewMemHandleSegments(segs, flags)
	if class.ops != nil && class.ops.MemRegister != nil {
		if err := class.ops.MemRegister(class, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// MemHandleFree releases resources held for h (spec §6 "mem_handle_free").
func MemHandleFree(class *Class, h *MemHandle) {
	if class.ops != nil && class.ops.MemHandleFree != nil {
		class.ops.MemHandleFree(h)
	}
}

// Put issues a one-sided write of length bytes from local[localOffset:] to
// remote[remoteOffset:] at remoteID (spec §6 "put").
func Put(ctx *Context, op *OpID, addr *Address, local *MemHandle, localOffset uint64, remote *MemHandle, remoteOffset uint64, length uint64, remoteID uint8, cb Callback, arg any) error {
	if err := op.reset(ctx, KindPut, cb, arg, addr); err != nil {
		return err
	}
	op.Local, op.Remote = local, remote
	op.LocalOff, op.RemoteOff, op.Length, op.RemoteID = localOffset, remoteOffset, length, remoteID
	if err := checkOp("put", ctx.class.ops != nil && ctx.class.ops.Put != nil); err != nil {
		op.complete(OpNotSupported)
		return err
	}
	return ctx.class.ops.Put(ctx, op)
}

// Get issues a one-sided read of length bytes from remote[remoteOffset:]
// into local[localOffset:] (spec §6 "get").
func Get(ctx *Context, op *OpID, addr *Address, local *MemHandle, localOffset uint64, remote *MemHandle, remoteOffset uint64, length uint64, remoteID uint8, cb Callback, arg any) error {
	if err := op.reset(ctx, KindGet, cb, arg, addr); err != nil {
		return err
	}
	op.Local, op.Remote = local, remote
	op.LocalOff, op.RemoteOff, op.Length, op.RemoteID = localOffset, remoteOffset, length, remoteID
	if err := checkOp("get", ctx.class.ops != nil && ctx.class.ops.Get != nil); err != nil {
		op.complete(OpNotSupported)
		return err
	}
	return ctx.class.ops.Get(ctx, op)
}

// PollGetFD returns a wakeable descriptor for ctx, if the plugin exposes
// one (spec §6 "poll_get_fd").
func PollGetFD(ctx *Context) (fd int, ok bool) {
	if ctx.class.ops == nil || ctx.class.ops.PollGetFD == nil {
		return 0, false
	}
	return ctx.class.ops.PollGetFD(ctx)
}

// PollTryWait reports whether blocking on ctx's descriptor is currently
// safe, i.e. no completions are already pending (spec §6 "poll_try_wait").
func PollTryWait(ctx *Context) bool {
	if ctx.CompletionCount() > 0 {
		return false
	}
	if ctx.class.ops == nil || ctx.class.ops.PollTryWait == nil {
		return true
	}
	return ctx.class.ops.PollTryWait(ctx)
}

// ErrorToString renders status as its canonical string (spec §6
// "error_to_string").
func ErrorToString(status Status) string {
	return status.String()
}
