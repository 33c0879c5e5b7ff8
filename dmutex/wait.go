package dmutex

import (
	"runtime"
	"sync/atomic"
	"time"
)

const (
	// spinBudget is the number of heartbeats a first-time waiter publishes before
	// it offers itself for a catch and starts yielding.
	spinBudget = 128
	// spinPause is the length of the busy loop between two heartbeats.
	spinPause = 16
	// yieldBudget is the number of times a waiter yields while catchable before
	// it parks.
	yieldBudget = 32
	// preemptedAfter is how stale a heartbeat may get before a waker assumes the
	// waiter was descheduled and skips it.
	preemptedAfter = 100 * time.Microsecond

	stampBits = 64 - kindBits
	stampMask = 1<<stampBits - 1
)

var epoch = time.Now()

// nanotime is a monotonic clock, truncated to the bits a heartbeat can carry.
func nanotime() uint64 { return uint64(time.Since(epoch)) & stampMask }

func heartbeat() uint64 {
	if !publishTimestamps {
		return kindWaiting
	}
	return nanotime()<<kindBits | kindWaiting
}

// preempted reports whether a heartbeat published at spin is older than
// preemptedAfter. Heartbeats newer than now count as fresh.
func preempted(spin, now uint64) bool {
	age := (now - spin>>kindBits) & stampMask
	return age < stampMask/2 && age > uint64(preemptedAfter)
}

type signal uint8

const (
	signalOwner signal = iota // the lock was handed to this waiter
	signalRetry               // the waiter was skipped or relayed and must queue again
)

// publish makes a freshly queued node visible to wakers. mode is kindWaiting for
// the first attempt and kindAboutToWait after being skipped or relayed.
func (n *node) publish(mode uint64) {
	atomic.StoreUint32(&n.sleep, sleepIdle)
	if mode == kindWaiting {
		n.spin.Store(heartbeat())
		return
	}
	n.spin.Store(kindAboutToWait)
}

// await blocks until a waker signals the node.
//
// A first-time waiter spins, publishing a heartbeat on every iteration and reading
// back whatever a waker left there. It then switches spin to kindAboutToWait, after
// which wakers talk to it through sleep: it yields while a waker can still catch it
// and finally parks.
func (n *node) await(mode uint64) signal {
	if mode == kindWaiting {
		for spins := 0; spins < spinBudget; spins++ {
			switch kindOf(n.spin.Swap(heartbeat())) {
			case kindWake:
				return signalOwner
			case kindSkipped:
				return signalRetry
			}
			for range spinPause {
				// Empty spin loop.
			}
		}
		switch kindOf(n.spin.Swap(kindAboutToWait)) {
		case kindWake:
			return signalOwner
		case kindSkipped:
			return signalRetry
		}
	}

	for range yieldBudget {
		if atomic.LoadUint32(&n.sleep) == sleepCaught {
			return signalOwner
		}
		runtime.Gosched()
	}

	if !atomic.CompareAndSwapUint32(&n.sleep, sleepIdle, sleepParked) {
		invariant(atomic.LoadUint32(&n.sleep) == sleepCaught, "unexpected sleep state before parking")
		return signalOwner
	}
	for {
		parker.Wait(&n.sleep, sleepParked)
		if atomic.LoadUint32(&n.sleep) == sleepRelay {
			return signalRetry
		}
	}
}
