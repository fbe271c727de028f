// File: smplugin/send_recv.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message send/recv path (spec §4.7), grounded on na_sm.c's
// na_sm_msg_send_post/na_sm_msg_recv_post: copy the payload into a pool
// buffer, push its index onto the target queue-pair's rx ring, then on
// the receive side pop and copy back out. Expected traffic uses the
// connection's negotiated queue pair and is matched on tag at progress
// time; unexpected traffic uses the well-known unexpectedPair index
// every region reserves permanently and is cached until claimed.

package smplugin

import (
	"github.com/momentics/na/na"
	"github.com/momentics/na/nalog"
)

// msgSendExpected copies op.Buf into a free copy-buffer slot of the
// peer's region and pushes it onto the negotiated connection's rx ring.
// On back-pressure it parks op on the retry queue (spec §4.7/§4.9).
func msgSendExpected(ep *Endpoint, op *na.OpID) error {
	return msgSendOnPair(ep, op, false)
}

// msgSendUnexpected is identical but targets the well-known unexpected
// channel so the receiver need not have pre-negotiated a connection.
func msgSendUnexpected(ep *Endpoint, op *na.OpID) error {
	return msgSendOnPair(ep, op, true)
}

func msgSendOnPair(ep *Endpoint, op *na.OpID, unexpected bool) error {
	data, ok := op.Addr.PluginData.(*addrData)
	if !ok || data.region == nil {
		return na.NewError("msg_send", na.AddrNotAvail)
	}

	// Spec §4.7 step 1 / §8 boundary: a payload larger than a copy-buffer
	// slot can never be carried and fails Overflow up front instead of
	// being silently truncated.
	if len(op.Buf) > copyBufSize {
		op.Complete(na.Overflow)
		return na.NewError("msg_send", na.Overflow)
	}

	pairIdx := data.remotePair
	if unexpected {
		pairIdx = unexpectedPair
	}

	attempt := func(op *na.OpID) (retryAgain bool, err error) {
		// §8 boundary: a size-0 send succeeds without ever reserving a
		// copy-buffer slot.
		bufIdx := noBufIndex
		n := 0
		if len(op.Buf) > 0 {
			idx, ok := data.region.copyBufs.acquire()
			if !ok {
				return true, nil
			}
			slot := data.region.copyBufs.slot(idx)
			n = copy(slot, op.Buf)
			bufIdx = uint8(idx)
		}

		qp := &data.region.queuePairs[pairIdx]
		hdr := msgHdr{Tag: op.Tag, BufIndex: bufIdx, Length: uint16(n), SenderID: ep.selfID}
		if !qp.rx.push(packMsgHdr(hdr)) {
			if bufIdx != noBufIndex {
				data.region.copyBufs.release(int(bufIdx))
			}
			return true, nil
		}
		if data.remoteNotifyFD != 0 {
			_ = signalNotifyFD(data.remoteNotifyFD)
		}
		op.Complete(na.Success)
		return false, nil
	}

	again, err := attempt(op)
	if err != nil {
		op.Complete(na.ProtocolError)
		return err
	}
	if again {
		ep.retryQueue.push(retryEntry{op: op, retry: attempt})
	}
	return nil
}

// msgRecvExpected implements progress_rx_queue's matching loop over the
// negotiated connection's own rx ring (spec §4.7 "Expected: … match on
// (addr, tag) at progress time"). The queue pair already pins addr, so
// only the tag remains to check; a popped message whose tag doesn't
// match op.Tag has no posted recv waiting for it and is dropped with a
// warning rather than delivered to the wrong op (spec S2).
func msgRecvExpected(ep *Endpoint, op *na.OpID) error {
	data, ok := op.Addr.PluginData.(*addrData)
	if !ok {
		return na.NewError("msg_recv_expected", na.AddrNotAvail)
	}

	attempt := func(op *na.OpID) (bool, error) {
		qp := &ep.selfRegion.queuePairs[data.localPair]
		for {
			v, ok := qp.rx.pop()
			if !ok {
				return true, nil
			}
			hdr := unpackMsgHdr(v)
			if hdr.Tag != op.Tag {
				if hdr.BufIndex != noBufIndex {
					ep.selfRegion.copyBufs.release(int(hdr.BufIndex))
				}
				nalog.Warn("smplugin: expected message dropped, no matching recv",
					"tag", hdr.Tag, "want_tag", op.Tag)
				continue
			}
			if hdr.BufIndex != noBufIndex {
				slot := ep.selfRegion.copyBufs.slot(int(hdr.BufIndex))
				copy(op.Buf, slot[:hdr.Length])
				ep.selfRegion.copyBufs.release(int(hdr.BufIndex))
			}
			op.ActualLength = uint64(hdr.Length)
			op.Source = hdr.SenderID
			op.Complete(na.Success)
			return false, nil
		}
	}

	again, err := attempt(op)
	if err != nil {
		op.Complete(na.ProtocolError)
		return err
	}
	if again {
		ep.retryQueue.push(retryEntry{op: op, retry: attempt})
	}
	return nil
}

// msgRecvUnexpected claims the oldest cached unexpected message, draining
// any newly arrived ring entries into the cache first (spec §4.7). The
// receiver only learns the sender's short id and the message's own tag,
// not a resolved na.Address; callers that need to reply must perform
// their own lookup keyed on op.Source.
func msgRecvUnexpected(ep *Endpoint, op *na.OpID) error {
	attempt := func(op *na.OpID) (bool, error) {
		ep.drainUnexpectedRing()
		msg, ok := ep.popUnexpectedCache()
		if !ok {
			return true, nil
		}
		n := copy(op.Buf, msg.Data)
		op.ActualLength = uint64(n)
		op.Tag = msg.Tag
		op.Source = msg.SenderID
		op.Complete(na.Success)
		return false, nil
	}

	again, err := attempt(op)
	if err != nil {
		op.Complete(na.ProtocolError)
		return err
	}
	if again {
		ep.retryQueue.push(retryEntry{op: op, retry: attempt})
	}
	return nil
}
