// File: smplugin/notify.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notification descriptors (spec §4.2 "wakeable descriptor"): each
// endpoint owns one eventfd, handed to peers during address resolution; a
// peer's send signals it, so a caller waiting on the descriptor returned
// by PollGetFD is woken without having to busy-loop.

package smplugin

import "golang.org/x/sys/unix"

// newNotifyFD creates a non-blocking eventfd usable both for writing a
// wakeup and for poll/epoll readiness.
func newNotifyFD() (int, error) {
	return unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
}

// signalNotifyFD posts one wakeup to fd (spec "rx_notify"/"tx_notify").
func signalNotifyFD(fd int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(fd, buf[:])
	if err == unix.EAGAIN {
		// Counter already non-zero: a wakeup is already pending.
		return nil
	}
	return err
}

// drainNotifyFD consumes a pending wakeup, if any.
func drainNotifyFD(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}
