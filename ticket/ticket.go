// Package ticket provides a fair mutual exclusion lock implementation using a ticket-based
// queuing system. The Lock type ensures FIFO ordering of lock acquisition by handing out
// ticket numbers and serving them in order, while implementing adaptive spinning
// strategies to balance CPU utilization with latency.
//
// The lock never parks a goroutine. Waiters spin for a bounded number of rounds and
// then yield their processor on every check, so a descheduled ticket holder gets to
// run again. dmutexstress uses it as the fair baseline next to sync.Mutex.
package ticket

import (
	"runtime"

	"go.uber.org/atomic"
)

// Lock implements a fair mutual exclusion lock using a ticket-based queuing system.
// The zero value is an unlocked lock.
//
// The internal implementation uses two counters:
// - head: the ticket currently being served
// - tail: the next ticket to be issued
//
// The lock is free when head == tail, and locked otherwise.
type Lock struct {
	head atomic.Uint32 // Current ticket being served
	tail atomic.Uint32 // Next ticket to be issued
}

// NewLock creates a new ticket lock.
func NewLock() *Lock { return new(Lock) }

// TryLock attempts to acquire the lock without blocking. It returns true if the lock
// was acquired successfully, and false if the lock is currently held by another goroutine.
func (t *Lock) TryLock() bool {
	serving := t.head.Load()
	// Taking the next ticket only succeeds if nobody else holds one.
	return t.tail.CompareAndSwap(serving, serving+1)
}

const (
	ticketBaseWait uint32 = 10
	ticketWaitNext        = 5
	ticketYieldAt         = 8
	ticketSpinRounds      = 64
)

// Lock acquires the lock. Goroutines wait proportionally to their distance from the
// head of the queue. A goroutine more than ticketYieldAt positions back, or one that
// has already checked ticketSpinRounds times, yields its processor between checks.
func (t *Lock) Lock() {
	myTicket := t.tail.Add(1) - 1 // Get our ticket

	// Fast path for uncontended case
	if t.head.Load() == myTicket {
		return
	}

	wait := ticketBaseWait
	distancePrev := uint32(1)

	for rounds := 0; ; rounds++ {
		cur := t.head.Load()
		if cur == myTicket {
			return
		}
		distance := myTicket - cur // How many people are in front of us?

		if distance > 1 {
			if distance != distancePrev {
				distancePrev = distance
				wait = ticketBaseWait
			}
			for range distance * wait {
				// Empty spin loop.
			}
		} else {
			for range ticketWaitNext {
				// Empty spin loop.
			}
		}

		if distance > ticketYieldAt || rounds >= ticketSpinRounds {
			runtime.Gosched()
		}
	}
}

// Unlock releases the lock.
func (t *Lock) Unlock() { t.head.Inc() }

// isFree checks if the lock is free.
func (t *Lock) isFree() bool { return t.head.Load() == t.tail.Load() }
