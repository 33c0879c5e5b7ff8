package dmutex

import "time"

// TryLockFor attempts to acquire the lock, giving up after d. The returned Proxy is
// empty on timeout. A non-positive d never blocks.
func (m *Generic[W, A]) TryLockFor(d time.Duration) Proxy {
	return m.TryLockUntil(time.Now().Add(d))
}

// TryLockUntil attempts to acquire the lock, giving up at deadline. The returned
// Proxy is empty on timeout. A deadline that has already passed makes it a TryLock.
//
// Timed waiters do not join the contention chain. They set the timed bit and sleep
// on the state word; whoever takes the bit off wakes one of them when it unlocks.
// A woken waiter that still finds the lock held sets the bit again, so several
// sleepers are woken one at a time and a wake-up may turn out to be redundant.
func (m *Generic[W, A]) TryLockUntil(deadline time.Time) Proxy {
	if p := m.TryLock(); p.Ok() {
		return p
	}

	w := m.word()
	key := lowHalf(w.Addr())
	woken := false

	for {
		if !time.Now().Before(deadline) {
			if woken {
				// Pass on the wake-up we may have consumed.
				parker.Wake(key, 1)
			}
			return Proxy{}
		}
		prev := w.Or(locked | timed)
		if prev&locked == 0 {
			invariant(prev == 0, "timed bit set on a free mutex")
			return Proxy{expected: locked}
		}
		woken = parker.WaitUntil(key, uint32(prev|locked|timed), deadline)
	}
}
