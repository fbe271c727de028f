// File: smplugin/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Control-channel wire format and SCM_RIGHTS fd passing (spec §4.5),
// grounded on na_sm.c's union na_sm_cmd_hdr packed bitfield and on the
// nabbar-golib unix-socket-server idioms for connection handling.

package smplugin

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

type cmdType uint8

const (
	cmdReserved cmdType = iota + 1
	cmdReleased
)

// cmdHdr mirrors na_sm.c's union na_sm_cmd_hdr: pid(32) | id(8) |
// pair_idx(8) | type(8) | pad(8), packed into 8 bytes.
type cmdHdr struct {
	PID     uint32
	ID      uint8
	PairIdx uint8
	Type    cmdType
}

func (c cmdHdr) encode() [8]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], c.PID)
	buf[4] = c.ID
	buf[5] = c.PairIdx
	buf[6] = byte(c.Type)
	return buf
}

func decodeCmdHdr(buf [8]byte) cmdHdr {
	return cmdHdr{
		PID:     binary.LittleEndian.Uint32(buf[0:4]),
		ID:      buf[4],
		PairIdx: buf[5],
		Type:    cmdType(buf[6]),
	}
}

// sendCmdWithFD writes an 8-byte command header and passes the region fd
// and the notify (eventfd) fd via SCM_RIGHTS in the same datagram's
// control message, in that order.
func sendCmdWithFD(sock int, cmd cmdHdr, regionFD, notifyFD int) error {
	buf := cmd.encode()
	rights := unix.UnixRights(regionFD, notifyFD)
	return unix.Sendmsg(sock, buf[:], rights, nil, 0)
}

// recvCmdWithFD reads a command header and the region/notify fd pair
// passed alongside it, in the order sendCmdWithFD wrote them.
func recvCmdWithFD(sock int) (cmdHdr, int, int, error) {
	buf := make([]byte, 8)
	oob := make([]byte, unix.CmsgSpace(4*2))

	n, oobn, _, _, err := unix.Recvmsg(sock, buf, oob, 0)
	if err != nil {
		return cmdHdr{}, -1, -1, err
	}
	if n != 8 {
		return cmdHdr{}, -1, -1, fmt.Errorf("smplugin: short control read (%d bytes)", n)
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return cmdHdr{}, -1, -1, err
	}
	var fds []int
	for _, scm := range scms {
		parsed, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		fds = append(fds, parsed...)
	}
	if len(fds) < 2 {
		return cmdHdr{}, -1, -1, fmt.Errorf("smplugin: control message carried %d file descriptors, want 2", len(fds))
	}

	var arr [8]byte
	copy(arr[:], buf)
	return decodeCmdHdr(arr), fds[0], fds[1], nil
}
