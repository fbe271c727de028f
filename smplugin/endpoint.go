// File: smplugin/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint: the plugin-private per-class state (spec §3 "Shared region"
// owner, §4.4), grounded on na_sm.c's struct na_sm_endpoint. Holds the
// address map, the unexpected-message queue, the listening control
// socket, and this process's own shared region.

package smplugin

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/na/na"
	"github.com/momentics/na/nalog"
)

// mappedRegion pairs a mapped region with the raw bytes backing it, so
// Close can unmap them together.
type mappedRegion struct {
	r    *region
	data []byte
	fd   int
}

// Endpoint is the SM plugin's per-class state, installed as
// na.Class.PluginEndpoint.
type Endpoint struct {
	class *na.Class

	selfID     uint8
	selfRegion *region
	selfData   []byte
	regionFD   int
	regionPath string
	notifyFD   int

	listenSock int
	sockPath   string
	listen     bool

	addrMu sync.RWMutex
	addrs  map[peerKey]*na.Address

	retryQueue *retryQueue

	// unexpectedMu/unexpectedCache hold messages drained from the
	// well-known unexpected channel before any recv_unexpected has
	// claimed them (spec §4.7 "progress_rx_queue" unexpected-message
	// cache).
	unexpectedMu    sync.Mutex
	unexpectedCache []unexpectedMsg

	stopOnce sync.Once
	stopCh   chan struct{}
}

func shmDir() string {
	if d := os.Getenv("NA_SM_SHM_DIR"); d != "" {
		return d
	}
	return "/dev/shm"
}

// newEndpoint allocates the endpoint's own shared region and, if
// listen is set, its control socket.
func newEndpoint(class *na.Class, listen bool) (*Endpoint, error) {
	id := uint8(os.Getpid() & 0xff)
	regionPath := fmt.Sprintf("%s/na-sm-%d.region", shmDir(), os.Getpid())

	fd, data, err := createRegionFile(regionPath, regionSize)
	if err != nil {
		return nil, na.NewError("initialize", na.NoMem).WithInner(err)
	}
	r := asRegion(data)
	initRegion(r)

	notifyFD, err := newNotifyFD()
	if err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, na.NewError("initialize", na.ProtocolError).WithInner(err)
	}

	ep := &Endpoint{
		class:      class,
		selfID:     id,
		selfRegion: r,
		selfData:   data,
		regionFD:   fd,
		regionPath: regionPath,
		notifyFD:   notifyFD,
		addrs:      make(map[peerKey]*na.Address),
		retryQueue: newRetryQueue(),
		stopCh:     make(chan struct{}),
		listen:     listen,
	}

	na.RegisterCleanupHook(func() { cleanupOrphan(regionPath) })

	if listen {
		sockPath := controlSocketPath(int32(os.Getpid()), id)
		sock, err := listenControlSocket(sockPath)
		if err != nil {
			ep.close()
			return nil, na.NewError("initialize", na.ProtocolError).WithInner(err)
		}
		ep.listenSock = sock
		ep.sockPath = sockPath
		na.RegisterCleanupHook(func() { cleanupOrphan(sockPath) })
		go ep.acceptLoop()
	}

	return ep, nil
}

func createRegionFile(path string, size int) (fd int, data []byte, err error) {
	fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0600)
	if err != nil {
		return -1, nil, err
	}
	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	data, err = unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, data, nil
}

// mapRegionFromFD mmaps a region handed across the control socket via
// SCM_RIGHTS; the fd was dup'd by the kernel for this process already.
func mapRegionFromFD(fd int) (*mappedRegion, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, err
	}
	size := int(st.Size)
	if size < regionSize {
		unix.Close(fd)
		return nil, fmt.Errorf("smplugin: peer region too small (%d < %d)", size, regionSize)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &mappedRegion{r: asRegion(data), data: data, fd: fd}, nil
}

// close unmaps a peer region mapped by mapRegionFromFD and closes its fd.
func (mr *mappedRegion) close() {
	unix.Munmap(mr.data)
	unix.Close(mr.fd)
}

func listenControlSocket(path string) (int, error) {
	_ = unix.Unlink(path)
	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(sock, sa); err != nil {
		unix.Close(sock)
		return -1, err
	}
	if err := unix.Listen(sock, 16); err != nil {
		unix.Close(sock)
		return -1, err
	}
	return sock, nil
}

// acceptLoop services control-channel connections from peers resolving
// an address toward this endpoint (spec §4.5). Each connection is
// handled to completion and closed; the control channel is not kept
// open across resolutions.
func (ep *Endpoint) acceptLoop() {
	for {
		conn, err := unix.Accept(ep.listenSock)
		if err != nil {
			select {
			case <-ep.stopCh:
				return
			default:
				nalog.Warn("smplugin: control accept failed", "err", err)
				continue
			}
		}
		go ep.serveControlConn(conn)
	}
}

func (ep *Endpoint) serveControlConn(conn int) {
	defer unix.Close(conn)

	peerCmd, peerRegionFD, peerNotifyFD, err := recvCmdWithFD(conn)
	if err != nil {
		nalog.Warn("smplugin: control read failed", "err", err)
		return
	}
	defer unix.Close(peerRegionFD)
	defer unix.Close(peerNotifyFD)

	idx, ok := queuePairReserve(ep.selfRegion)
	if !ok {
		nalog.Warn("smplugin: no free queue-pair slot for peer", "peer_pid", peerCmd.PID)
		return
	}

	reply := cmdHdr{PID: uint32(os.Getpid()), ID: ep.selfID, PairIdx: idx, Type: cmdReserved}
	if err := sendCmdWithFD(conn, reply, ep.regionFD, ep.notifyFD); err != nil {
		queuePairRelease(ep.selfRegion, idx)
		nalog.Warn("smplugin: control reply failed", "err", err)
	}
}

// close releases the endpoint's own resources. Orphan-file cleanup is
// handled separately via the registered cleanup hooks (spec §4.4/§9 "the
// plugin_list[n] after free" fix: cleanupOrphan captures the path by
// value at registration time, before anything is freed).
func (ep *Endpoint) close() {
	ep.stopOnce.Do(func() { close(ep.stopCh) })
	if ep.listenSock != 0 {
		unix.Close(ep.listenSock)
	}
	if ep.selfData != nil {
		unix.Munmap(ep.selfData)
	}
	if ep.regionFD != 0 {
		unix.Close(ep.regionFD)
	}
	if ep.notifyFD != 0 {
		unix.Close(ep.notifyFD)
	}
}

// cleanupOrphan best-effort removes a leftover shared-memory or socket
// file left behind by a crashed process (spec §4.4, §9 bug fix).
func cleanupOrphan(path string) {
	if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
		nalog.Debug("smplugin: orphan cleanup", "path", path, "err", err)
	}
}
