// File: smplugin/retry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Retry queue (spec §4.9): ops that hit a transient back-pressure
// condition (full msg ring, no free copy buffer) park here and are
// retried on every progress tick until they succeed or are canceled.

package smplugin

import (
	"errors"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/na/na"
)

type retryEntry struct {
	op    *na.OpID
	retry func(op *na.OpID) (bool, error) // returns true when it should be retried again
}

// retryQueue is a spinlocked FIFO of parked ops, backed by
// github.com/eapache/queue's ring-buffered deque.
type retryQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newRetryQueue() *retryQueue {
	return &retryQueue{q: queue.New()}
}

func (rq *retryQueue) push(e retryEntry) {
	e.op.MarkRetrying()
	rq.mu.Lock()
	rq.q.Add(e)
	rq.mu.Unlock()
}

// drain runs one retry attempt per parked entry currently in the queue
// (spec §4.9/§9 "stop-on-first-hard-error"): a non-transient failure
// completes its op ID with the error's status and halts the drain for
// this tick; the entries after it are put back, in order, untried.
func (rq *retryQueue) drain() {
	rq.mu.Lock()
	n := rq.q.Length()
	entries := make([]retryEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, rq.q.Remove().(retryEntry))
	}
	rq.mu.Unlock()

	stopped := false
	for _, e := range entries {
		if stopped {
			rq.push(e)
			continue
		}
		if e.op.IsCanceled() {
			e.op.ClearRetrying()
			e.op.Complete(na.Canceled)
			continue
		}
		again, err := e.retry(e.op)
		if err != nil {
			e.op.ClearRetrying()
			status := na.ProtocolError
			var naErr *na.Error
			if errors.As(err, &naErr) {
				status = naErr.Status
			}
			e.op.Complete(status)
			stopped = true
			continue
		}
		if again {
			rq.push(e)
		} else {
			e.op.ClearRetrying()
		}
	}
}

func (rq *retryQueue) len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.q.Length()
}
