// Package mcs implements the Mellor-Crummey Scott (MCS) lock, a FIFO queue lock in which
// every waiter spins on its own node.
//
// Compared with the distributed mutex in package dmutex, an MCS lock:
//   - Serves waiters strictly in arrival order
//   - Needs the caller to supply a node for every acquisition
//   - Never parks: a waiter spins briefly, then yields between checks
//
// Example usage:
//
//	var lock mcs.Lock
//	var node mcs.QNode // one per goroutine
//
//	lock.Lock(&node)
//	// ... critical section ...
//	lock.Unlock(&node)
//
//	if lock.TryLock(&node) {
//	    // ... critical section ...
//	    lock.Unlock(&node)
//	}
//
// A QNode belongs to one goroutine and must be passed to the Unlock that matches
// its Lock. dmutexstress uses the lock as a FIFO baseline.
package mcs

import (
	"runtime"

	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"
)

// spinRounds is the number of busy checks a waiter makes before it starts yielding.
const spinRounds = 64

// QNode is a waiter's place in the queue.
type QNode struct {
	next    atomic.Pointer[QNode]
	waiting atomic.Bool
	_       cpu.CacheLinePad
}

// Lock is an MCS lock. The zero value is an unlocked lock.
type Lock struct {
	tail atomic.Pointer[QNode]
}

// NewLock creates a new MCS lock.
func NewLock() *Lock { return new(Lock) }

// TryLock attempts to acquire the lock with node without queueing.
func (l *Lock) TryLock(node *QNode) bool {
	node.next.Store(nil)
	return l.tail.CompareAndSwap(nil, node)
}

// Lock acquires the lock, queueing node behind the current tail.
func (l *Lock) Lock(node *QNode) {
	node.next.Store(nil)
	node.waiting.Store(true)
	pred := l.tail.Swap(node)
	if pred == nil {
		return
	}

	pred.next.Store(node)
	for spins := 0; node.waiting.Load(); spins++ {
		if spins >= spinRounds {
			runtime.Gosched()
		}
	}
}

// Unlock releases the lock held through node, handing it to the next waiter.
func (l *Lock) Unlock(node *QNode) {
	succ := node.next.Load()
	if succ == nil {
		if l.tail.CompareAndSwap(node, nil) {
			return
		}
		// A waiter swapped itself in but has not linked to us yet.
		for succ = node.next.Load(); succ == nil; succ = node.next.Load() {
			runtime.Gosched()
		}
	}
	succ.waiting.Store(false)
}

// IsFree reports whether the lock is free at the time of the call.
func (l *Lock) IsFree() bool { return l.tail.Load() == nil }
