// Package dmutex implements a distributed mutex: a mutual exclusion lock whose whole
// shared state is one machine word, and whose wake-up work is spread across the
// goroutines that contend for it.
//
// The distributed mutex provides several advantages over a lock built on a single
// wait queue:
//   - Uncontended Lock and Unlock are one atomic instruction each
//   - Waiters queue themselves with a single atomic swap, forming a LIFO chain
//   - Each waiter spins on its own cache line, publishing a heartbeat
//   - The holder hands the lock directly to a live waiter, skipping waiters that
//     look preempted and relaying wake-ups of parked ones to the next holder
//   - Timed acquisitions sleep on the state word itself with a real deadline
//
// Example usage:
//
//	var mu dmutex.Mutex
//
//	// Blocking acquisition
//	p := mu.Lock()
//	// ... critical section ...
//	mu.Unlock(&p)
//
//	// Non-blocking try-lock
//	if p := mu.TryLock(); p.Ok() {
//	    // ... critical section ...
//	    mu.Unlock(&p)
//	}
//
//	// Acquisition with a timeout
//	if p := mu.TryLockFor(10 * time.Millisecond); p.Ok() {
//	    // ... critical section ...
//	    mu.Unlock(&p)
//	}
//
// Every successful acquisition returns a Proxy that must be passed to Unlock exactly
// once. The mutex is not reentrant: locking it again from the holder deadlocks.
// Ordering is not FIFO. A waiter is only passed over when its heartbeat says it was
// descheduled, so under a fair scheduler every waiter eventually gets the lock.
//
// Build tags:
//   - dmutex_checks verifies internal invariants and Proxy misuse at runtime
//   - dmutex_notimestamps disables heartbeats and preemption detection
//   - dmutex_osfutex parks waiters with Linux futex system calls (see package futex)
package dmutex

import (
	"github.com/ahrav/go-dmutex/futex"
)

// parker blocks waiters that ran out of spinning and timed waiters.
var parker futex.Parker = futex.Default()

// Generic is the distributed mutex over a pluggable state word implementation A.
// The zero value is an unlocked mutex. A Generic must not be copied after first use.
type Generic[W any, A Atomic[W]] struct {
	state W
}

// Mutex is the distributed mutex over the default state word.
type Mutex = Generic[Word, *Word]

func (m *Generic[W, A]) word() A { return A(&m.state) }

// TryLock attempts to acquire the lock without blocking. The returned Proxy is empty
// if the lock is held.
func (m *Generic[W, A]) TryLock() Proxy {
	prev := m.word().Or(locked)
	if prev&locked != 0 {
		return Proxy{}
	}
	invariant(prev == 0, "timed bit set on a free mutex")
	return Proxy{expected: locked}
}

// Lock acquires the lock, blocking until it is available.
func (m *Generic[W, A]) Lock() Proxy {
	if p := m.TryLock(); p.Ok() {
		return p
	}
	return m.lockSlow()
}

func (m *Generic[W, A]) lockSlow() Proxy {
	w := m.word()
	n := nodes.get()
	mode := kindWaiting
	timedWaiters := false

	for {
		n.reset()
		prev := w.Swap(chainWord(n.id))
		invariant(prev != timed, "timed bit set on a free mutex")
		if hasTimed(prev) {
			// Our swap took the bit off; we owe the notification.
			timedWaiters = true
			prev = stripTimed(prev)
		}

		if prev == 0 {
			// The holder unlocked between TryLock and the swap. Our handle stays
			// in the word, so the node stays ours until Unlock.
			return Proxy{expected: chainWord(n.id), self: n.id, timedWaiters: timedWaiters}
		}

		n.next.Store(prev)
		n.publish(mode)
		trace.enqueue()

		if n.await(mode) == signalRetry {
			mode = kindAboutToWait
			continue
		}

		p := Proxy{
			expected:     locked,
			waker:        n.waker.Load(),
			handoff:      n.handoff.Load(),
			ready:        n.ready.Load(),
			timedWaiters: timedWaiters,
		}
		// prev == waker means our predecessor was the bare lock marker: we are the
		// last of the chain and go back to the state word on Unlock.
		if prev != p.waker {
			p.next = prev
		}
		nodes.put(n)
		return p
	}
}

// Unlock releases the lock held through p and empties p. Unlocking an empty Proxy
// is a programming error; it panics when built with dmutex_checks and is ignored
// otherwise.
func (m *Generic[W, A]) Unlock(p *Proxy) {
	if !p.Ok() {
		invariant(false, "unlock of an empty proxy")
		return
	}
	q := p.Take()
	w := m.word()

	timedWaiters := q.timedWaiters
	handedOff := false
	var sleepers uint32

	if q.next != 0 {
		handedOff, sleepers = wake(q.next, q.waker, 0)
	}

	expected := q.expected
	for !handedOff {
		if w.CompareAndSwap(expected, 0) {
			break
		}
		cur := w.Load()
		if cur == expected|timed {
			if w.CompareAndSwap(cur, 0) {
				timedWaiters = true
				break
			}
			continue
		}
		if stripTimed(cur) == expected {
			continue
		}

		// A chain formed on the state word. Take it off, leaving the bare lock
		// marker, and hand the lock down the chain. expected terminates it.
		head := w.Swap(locked)
		if hasTimed(head) {
			timedWaiters = true
			head = stripTimed(head)
		}
		kind, _, _ := stateOf(head)
		invariant(kind == stateChain, "state word lost its chain")

		handedOff, sleepers = wake(head, expected, sleepers)
		expected = locked
	}

	if q.self != 0 {
		nodes.put(nodes.at(q.self))
	}
	relay(sleepers)
	relay(q.handoff)
	relay(q.ready)
	if timedWaiters {
		parker.Wake(lowHalf(w.Addr()), 1)
	}
}

// IsLocked reports whether the lock is held at the time of the call.
func (m *Generic[W, A]) IsLocked() bool { return m.word().Load()&locked != 0 }
