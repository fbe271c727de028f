// File: smplugin/addr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Address resolution (spec §4.5): Reserved -> CmdPushed -> Resolved state
// machine driven over a UNIX-domain control socket, passing the shared
// region's file descriptor via SCM_RIGHTS so the peer can mmap the same
// object.

package smplugin

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/na/na"
)

// peerKey is the SM address key: a (pid, id) pair, matching na_sm.c's
// struct na_sm_addr_key.
type peerKey struct {
	PID int32
	ID  uint8
}

// addrData is the PluginData payload attached to every na.Address created
// by this plugin.
type addrData struct {
	endpoint *Endpoint
	key      peerKey

	mu sync.Mutex
	// localPair is the queue-pair index this process reserved in its own
	// selfRegion for this connection; recv drains that slot.
	localPair uint8
	// remotePair is the index the peer reserved in ITS region for this
	// connection, learned from the control-channel reply; send writes
	// into that slot of region (the peer's mapped region).
	remotePair uint8
	hasQueue   bool
	region     *region
	regionOwn  *mappedRegion // nil for the local/self address

	// remoteNotifyFD is the peer's wakeable eventfd, learned during
	// resolve() over the control channel; msgSendOnPair signals it after
	// a successful push so a peer blocked in PollWait on its own notifyFD
	// wakes without busy-looping.
	remoteNotifyFD int
}

func newAddrData(ep *Endpoint, key peerKey) *addrData {
	return &addrData{endpoint: ep, key: key}
}

// resolve drives the Reserved -> CmdPushed -> Resolved transitions for
// addr against the control socket (spec §4.5). It is idempotent: callers
// that race to resolve the same address observe the same terminal state.
func resolve(class *na.Class, addr *na.Address) error {
	addr.BeginResolve()
	defer addr.EndResolve()

	if addr.IsResolved() {
		return nil
	}
	data := addr.PluginData.(*addrData)
	data.mu.Lock()
	defer data.mu.Unlock()

	ep := data.endpoint

	idx, ok := queuePairReserve(ep.selfRegion)
	if !ok {
		return na.NewError("addr_resolve", na.NoMem)
	}
	addr.OrState(na.AddrReserved)

	sockPath := controlSocketPath(data.key.PID, data.key.ID)
	conn, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		queuePairRelease(ep.selfRegion, idx)
		return na.NewError("addr_resolve", na.ProtocolError).WithInner(err)
	}
	defer unix.Close(conn)

	sa := &unix.SockaddrUnix{Name: sockPath}
	if err := unix.Connect(conn, sa); err != nil {
		queuePairRelease(ep.selfRegion, idx)
		return na.NewError("addr_resolve", na.NoEntry).WithInner(err)
	}

	cmd := cmdHdr{PID: uint32(os.Getpid()), ID: ep.selfID, PairIdx: idx, Type: cmdReserved}
	if err := sendCmdWithFD(conn, cmd, ep.regionFD, ep.notifyFD); err != nil {
		queuePairRelease(ep.selfRegion, idx)
		return na.NewError("addr_resolve", na.ProtocolError).WithInner(err)
	}
	addr.OrState(na.AddrCmdPushed)

	peerCmd, peerRegionFD, peerNotifyFD, err := recvCmdWithFD(conn)
	if err != nil {
		queuePairRelease(ep.selfRegion, idx)
		return na.NewError("addr_resolve", na.ProtocolError).WithInner(err)
	}

	peerRegion, err := mapRegionFromFD(peerRegionFD)
	if err != nil {
		unix.Close(peerNotifyFD)
		queuePairRelease(ep.selfRegion, idx)
		return na.NewError("addr_resolve", na.Fault).WithInner(err)
	}

	data.localPair = idx
	data.remotePair = peerCmd.PairIdx
	data.hasQueue = true
	data.region = peerRegion.r
	data.regionOwn = peerRegion
	data.remoteNotifyFD = peerNotifyFD

	addr.OrState(na.AddrResolved)
	return nil
}

func controlSocketPath(pid int32, id uint8) string {
	return fmt.Sprintf("%s/na-sm-%d-%d.sock", shmDir(), pid, id)
}
