// File: smplugin/unexpected.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unexpected-message cache (spec §4.7): progress_rx_queue drains the
// well-known unexpected channel's ring independent of whether a recv is
// currently posted, copying each arrived payload out of its copy buffer
// (freeing the buffer immediately) and queuing it here until a matching
// recv_unexpected call claims it. This decouples the sender (which must
// not block on a receiver that hasn't polled yet) from the receiver.

package smplugin

type unexpectedMsg struct {
	Tag      uint32
	SenderID uint8
	Data     []byte
}

// drainUnexpectedRing pops every currently available entry off the
// endpoint's unexpected-channel ring, copies its payload out of the
// shared copy-buffer pool, and appends it to the cache, releasing the
// copy buffer so producers are never held up by a slow consumer.
func (ep *Endpoint) drainUnexpectedRing() {
	qp := &ep.selfRegion.queuePairs[unexpectedPair]
	for {
		v, ok := qp.rx.pop()
		if !ok {
			return
		}
		hdr := unpackMsgHdr(v)
		var data []byte
		if hdr.BufIndex != noBufIndex {
			slot := ep.selfRegion.copyBufs.slot(int(hdr.BufIndex))
			data = make([]byte, hdr.Length)
			copy(data, slot[:hdr.Length])
			ep.selfRegion.copyBufs.release(int(hdr.BufIndex))
		}
		ep.unexpectedMu.Lock()
		ep.unexpectedCache = append(ep.unexpectedCache, unexpectedMsg{
			Tag:      hdr.Tag,
			SenderID: hdr.SenderID,
			Data:     data,
		})
		ep.unexpectedMu.Unlock()
	}
}

// popUnexpectedCache removes and returns the oldest cached unexpected
// message, if any.
func (ep *Endpoint) popUnexpectedCache() (unexpectedMsg, bool) {
	ep.unexpectedMu.Lock()
	defer ep.unexpectedMu.Unlock()
	if len(ep.unexpectedCache) == 0 {
		return unexpectedMsg{}, false
	}
	msg := ep.unexpectedCache[0]
	ep.unexpectedCache = ep.unexpectedCache[1:]
	return msg, true
}
