package dmutex

import (
	"runtime"
	"sync/atomic"
)

// wake hands the lock to the first live waiter of the chain starting at head. The
// chain ends at the node whose next equals waker. sleepers is the relay list
// collected so far.
//
// Waiters with a stale heartbeat are skipped and queue again. Waiters found parked
// are pushed onto the relay list; it goes to the new holder, or back to the caller
// if the chain ran out without one.
func wake(head, waker uintptr, sleepers uint32) (bool, uint32) {
	for cur := head; ; {
		n := nodes.at(idOf(cur))

		// next is written before spin leaves kindUninitialized. It must be read
		// before signalling: a signalled node may be queued again at once.
		v := n.spin.Load()
		for kindOf(v) == kindUninitialized {
			runtime.Gosched()
			v = n.spin.Load()
		}
		next := n.next.Load()
		terminal := next == waker
		invariant(kindOf(v) == kindWaiting || kindOf(v) == kindAboutToWait, "chain node signalled twice")

		// A spinning waiter reads the signal back from its next heartbeat swap.
		// If the swap returns kindAboutToWait instead, the waiter has stopped
		// looking at spin and is reached through sleep below.
		if kindOf(v) == kindWaiting {
			if publishTimestamps && preempted(v, nanotime()) {
				// Sequentially consistent like every other signal. Whether a
				// skip could get away with weaker ordering is open.
				if kindOf(n.spin.Swap(kindSkipped)) == kindWaiting {
					trace.signal()
					if terminal {
						return false, sleepers
					}
					cur = next
					continue
				}
			} else {
				n.handOver(waker, sleepers, terminal)
				if kindOf(n.spin.Swap(kindWake)) == kindWaiting {
					trace.signal()
					return true, 0
				}
			}
		}

		n.handOver(waker, sleepers, terminal)
		if atomic.CompareAndSwapUint32(&n.sleep, sleepIdle, sleepCaught) {
			trace.signal()
			return true, 0
		}
		invariant(atomic.LoadUint32(&n.sleep) == sleepParked, "caught a node that is not parked")
		n.link.Store(sleepers)
		sleepers = n.id

		if terminal {
			return false, sleepers
		}
		cur = next
	}
}

// handOver writes the relay fields a woken waiter reads to build its Proxy. A
// terminal waiter gets the relay list as ready, anyone else as handoff.
func (n *node) handOver(waker uintptr, sleepers uint32, terminal bool) {
	n.waker.Store(waker)
	if terminal {
		n.handoff.Store(0)
		n.ready.Store(sleepers)
		return
	}
	n.handoff.Store(sleepers)
	n.ready.Store(0)
}

// relay wakes every parked waiter of a relay list. Each link is read before the
// node is released, since a released waiter may reuse its node immediately.
func relay(sleepers uint32) {
	for id := sleepers; id != 0; {
		n := nodes.at(id)
		id = n.link.Load()
		atomic.StoreUint32(&n.sleep, sleepRelay)
		trace.signal()
		parker.Wake(&n.sleep, 1)
	}
}
