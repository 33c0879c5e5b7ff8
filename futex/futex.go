// Package futex provides the thread-parking primitives used by package dmutex.
//
// A futex lets a goroutine block on the value of a 32-bit word and lets another
// goroutine wake the goroutines blocked on that word. Waiting only happens if the word
// still holds the expected value, which is what prevents lost wake-ups: a waker always
// changes the word before it wakes.
//
// Two implementations are available:
//   - Emulated parks goroutines through the Go scheduler. Waiters are kept in hashed
//     buckets keyed by address, each bucket guarded by a sync.Mutex.
//   - OS (Linux only) issues FUTEX_WAIT and FUTEX_WAKE system calls, parking the
//     underlying OS thread.
//
// Default returns Emulated unless the module is built with the dmutex_osfutex tag on
// Linux.
//
// Example usage:
//
//	var word uint32
//	p := futex.Default()
//
//	go func() {
//	    atomic.StoreUint32(&word, 1)
//	    p.Wake(&word, 1)
//	}()
//
//	for atomic.LoadUint32(&word) == 0 {
//	    p.Wait(&word, 0)
//	}
//
// Like the system call, every wait may return spuriously. Callers re-check their word.
package futex

import "time"

// Parker blocks and wakes goroutines keyed by the address of a 32-bit word.
type Parker interface {
	// Wait blocks while *addr == val, until woken by Wake or spuriously.
	Wait(addr *uint32, val uint32)
	// WaitUntil is like Wait but gives up at deadline. It returns false if the
	// deadline passed and true if it returned earlier.
	WaitUntil(addr *uint32, val uint32, deadline time.Time) bool
	// Wake wakes up to n goroutines waiting on addr and returns how many it woke.
	Wake(addr *uint32, n int) int
}
