package dmutex

// Proxy is the token of one successful acquisition. It records what the holder owes
// on Unlock: the rest of the contention chain it inherited, the state word value
// that means "held by me, nobody queued", and the parked goroutines it must wake.
//
// The zero Proxy is empty: TryLock, TryLockFor and TryLockUntil return it when they
// fail, and Ok reports false for it. A Proxy is consumed by Unlock, which zeroes it.
// Copying a Proxy and unlocking both copies is undefined; use Take to move it.
type Proxy struct {
	// next is the chain below this holder still waiting for the lock, or 0.
	next uintptr
	// expected is the state word value to CAS back to free.
	expected uintptr
	// waker is the value terminating next, handed over by the previous holder.
	waker uintptr
	// handoff and ready are relay lists of parked waiters owed a wake-up.
	handoff uint32
	ready   uint32
	// self is the node whose handle is in the state word as expected, if any.
	self uint32
	// timedWaiters is set when the holder took the timed bit off the state word.
	timedWaiters bool
}

// Ok reports whether p represents a held lock.
func (p *Proxy) Ok() bool { return p.expected != 0 }

// Take moves the acquisition out of p, leaving p empty.
func (p *Proxy) Take() Proxy {
	q := *p
	*p = Proxy{}
	return q
}
