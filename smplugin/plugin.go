// File: smplugin/plugin.go
// Package smplugin implements the POSIX shared-memory NA transport: a
// shared region per process, a UNIX-domain control socket for address
// resolution, lock-free message rings, and process_vm_readv/writev-based
// RMA (spec §4.4-§4.9).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package smplugin

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/na/na"
	"github.com/momentics/na/naconfig"
)

func init() {
	na.RegisterPlugin("sm", factory)
}

func factory(info na.InfoString, listen bool, initInfo *naconfig.InitInfo) (*na.Ops, na.ProtocolInfo, error) {
	return &na.Ops{
		Initialize:     opInitialize,
		Finalize:       opFinalize,
		ContextCreate:  opContextCreate,
		ContextDestroy: opContextDestroy,

		AddrLookup:      opAddrLookup,
		AddrFree:        opAddrFree,
		AddrSelf:        opAddrSelf,
		AddrDup:         opAddrDup,
		AddrCmp:         opAddrCmp,
		AddrToString:    opAddrToString,
		AddrSerialize:   opAddrSerialize,
		AddrDeserialize: opAddrDeserialize,

		OpCreate:  opOpCreate,
		OpDestroy: opOpDestroy,

		MsgSendUnexpected: opMsgSendUnexpected,
		MsgSendExpected:   opMsgSendExpected,
		MsgRecvUnexpected: opMsgRecvUnexpected,
		MsgRecvExpected:   opMsgRecvExpected,

		Put: opPut,
		Get: opGet,

		PollGetFD:   opPollGetFD,
		PollTryWait: opPollTryWait,
		Poll:        opPoll,
		PollWait:    opPollWait,

		Cancel: opCancel,
	}, na.ProtocolInfo{Protocol: "sm"}, nil
}

func opInitialize(class *na.Class, protocol string, listen bool, info *naconfig.InitInfo) error {
	ep, err := newEndpoint(class, listen)
	if err != nil {
		return err
	}
	class.PluginEndpoint = ep
	return nil
}

func opFinalize(class *na.Class) error {
	ep := endpointOf(class)
	ep.close()
	return nil
}

func endpointOf(class *na.Class) *Endpoint {
	return class.PluginEndpoint.(*Endpoint)
}

// smContext is the plugin-private sub-context (spec §3 "plugin-private
// sub-context"); SM needs no per-context scratch state beyond what
// Endpoint already holds, so it is an empty marker type.
type smContext struct{}

func opContextCreate(class *na.Class, id uint8) (any, error) {
	return &smContext{}, nil
}

func opContextDestroy(class *na.Class, pluginCtx any) error {
	return nil
}

func opAddrLookup(class *na.Class, name string) (*na.Address, error) {
	ep := endpointOf(class)

	var pid int
	var id uint8
	if _, err := fmt.Sscanf(name, "%d:%d", &pid, &id); err != nil {
		return nil, na.NewError("addr_lookup", na.InvalidArg).WithInner(err)
	}
	key := peerKey{PID: int32(pid), ID: id}

	ep.addrMu.RLock()
	if a, ok := ep.addrs[key]; ok {
		ep.addrMu.RUnlock()
		return a.Dup(), nil
	}
	ep.addrMu.RUnlock()

	addr := na.NewAddress(class, key)
	addr.PluginData = newAddrData(ep, key)

	ep.addrMu.Lock()
	ep.addrs[key] = addr
	ep.addrMu.Unlock()

	if err := resolve(class, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func opAddrSelf(class *na.Class) (*na.Address, error) {
	ep := endpointOf(class)
	key := peerKey{PID: int32(os.Getpid()), ID: ep.selfID}

	addr := na.NewAddress(class, key)
	data := newAddrData(ep, key)
	data.localPair = unexpectedPair
	data.remotePair = unexpectedPair
	data.region = ep.selfRegion
	addr.PluginData = data
	addr.OrState(na.AddrResolved)
	return addr, nil
}

func opAddrFree(addr *na.Address) {
	data, ok := addr.PluginData.(*addrData)
	if !ok {
		return
	}
	data.mu.Lock()
	defer data.mu.Unlock()
	if data.hasQueue {
		queuePairRelease(data.endpoint.selfRegion, data.localPair)
		if data.regionOwn != nil {
			data.regionOwn.close()
		}
		if data.remoteNotifyFD != 0 {
			unix.Close(data.remoteNotifyFD)
		}
	}
}

func opAddrDup(addr *na.Address) *na.Address {
	return addr.Dup()
}

func opAddrCmp(a, b *na.Address) bool {
	da, ok1 := a.PluginData.(*addrData)
	db, ok2 := b.PluginData.(*addrData)
	if !ok1 || !ok2 {
		return a == b
	}
	return da.key == db.key
}

func opAddrToString(addr *na.Address) (string, error) {
	data, ok := addr.PluginData.(*addrData)
	if !ok {
		return "", na.NewError("addr_to_string", na.InvalidArg)
	}
	return fmt.Sprintf("sm://%d:%d", data.key.PID, data.key.ID), nil
}

func opAddrSerialize(addr *na.Address) ([]byte, error) {
	data, ok := addr.PluginData.(*addrData)
	if !ok {
		return nil, na.NewError("addr_serialize", na.InvalidArg)
	}
	return []byte(fmt.Sprintf("%d:%d", data.key.PID, data.key.ID)), nil
}

func opAddrDeserialize(class *na.Class, raw []byte) (*na.Address, error) {
	return opAddrLookup(class, string(raw))
}

type opPrivate struct{}

func opOpCreate(class *na.Class) any   { return &opPrivate{} }
func opOpDestroy(class *na.Class, _ any) {}

func opMsgSendUnexpected(ctx *na.Context, op *na.OpID) error {
	return msgSendUnexpected(endpointOf(ctx.Class()), op)
}

func opMsgSendExpected(ctx *na.Context, op *na.OpID) error {
	return msgSendExpected(endpointOf(ctx.Class()), op)
}

func opMsgRecvUnexpected(ctx *na.Context, op *na.OpID) error {
	return msgRecvUnexpected(endpointOf(ctx.Class()), op)
}

func opMsgRecvExpected(ctx *na.Context, op *na.OpID) error {
	return msgRecvExpected(endpointOf(ctx.Class()), op)
}

func opPut(ctx *na.Context, op *na.OpID) error {
	return rmaPut(endpointOf(ctx.Class()), op, vmWrite)
}

func opGet(ctx *na.Context, op *na.OpID) error {
	return rmaGet(endpointOf(ctx.Class()), op, vmRead)
}

func opPollGetFD(ctx *na.Context) (int, bool) {
	ep := endpointOf(ctx.Class())
	if ep.notifyFD == 0 {
		return 0, false
	}
	return ep.notifyFD, true
}

// opPollTryWait reports whether it is safe to block on the notify fd:
// false when there is already retry-queue work to drive, since blocking
// would miss it (spec §4.2 "Timeout policy": a plugin with no queued
// work may be waited on; one with work pending must not be").
func opPollTryWait(ctx *na.Context) bool {
	ep := endpointOf(ctx.Class())
	return ep.retryQueue.len() == 0
}

func opPoll(ctx *na.Context) (int, error) {
	ep := endpointOf(ctx.Class())
	drainNotifyFD(ep.notifyFD)
	ep.drainUnexpectedRing()
	before := ep.retryQueue.len()
	ep.retryQueue.drain()
	return before, nil
}

func opPollWait(ctx *na.Context, timeoutMs int) (int, error) {
	return opPoll(ctx)
}

func opCancel(ctx *na.Context, op *na.OpID) na.Status {
	return op.TryCancel()
}
