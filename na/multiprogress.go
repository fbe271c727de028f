// File: na/multiprogress.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-progress coordination (spec §4.2): serializes concurrent
// poll_wait callers onto a single plugin progress attempt per round so
// that a non-waitable plugin is never busy-polled by more than one
// thread at a time. Threads that lose the race simply wait on a
// condition variable for the winner to finish its round.

package na

import (
	"sync"
	"time"
)

// multiProgress arbitrates concurrent PollWait callers on one Context.
type multiProgress struct {
	mu       sync.Mutex
	cond     *sync.Cond
	leader   bool
	waiters  int
}

func newMultiProgress() *multiProgress {
	mp := &multiProgress{}
	mp.cond = sync.NewCond(&mp.mu)
	return mp
}

// enter admits the caller either as the progressing leader (returns
// true, caller must call exit and actually drive progress) or parks it
// until the current leader's round completes, after which it takes over
// as leader for the next round (returns true; the caller must call exit).
// Returns false only if timeoutMs elapses while parked; a negative
// timeoutMs parks without a time limit.
func (mp *multiProgress) enter(timeoutMs int) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if !mp.leader {
		mp.leader = true
		return true
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	if timeoutMs > 0 {
		t := time.AfterFunc(time.Until(deadline), func() {
			mp.mu.Lock()
			mp.cond.Broadcast()
			mp.mu.Unlock()
		})
		defer t.Stop()
	}
	mp.waiters++
	for mp.leader {
		if timeoutMs >= 0 && !time.Now().Before(deadline) {
			mp.waiters--
			return false
		}
		mp.cond.Wait()
	}
	mp.waiters--
	mp.leader = true
	return true
}

// exit releases leadership and wakes one parked waiter, if any, to take
// over the next progress round.
func (mp *multiProgress) exit() {
	mp.mu.Lock()
	mp.leader = false
	mp.mu.Unlock()
	mp.cond.Signal()
}
