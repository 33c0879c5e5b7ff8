package futex

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/cpu"
)

const (
	// bucketCount is the number of wait buckets. Unrelated words rarely share one.
	bucketCount     = 1 << bucketCountBits
	bucketCountBits = 10
)

// Emulated is a Parker that blocks goroutines on channels instead of OS threads.
// The zero value is ready to use and all Emulated values share the same buckets.
type Emulated struct{}

// waiter is queued in a bucket while its goroutine blocks on c.
type waiter struct {
	// prev, next, addr and queued are protected by the bucket lock.
	prev, next *waiter
	addr       *uint32
	queued     bool

	// c receives one value when the waiter is woken.
	c chan struct{}
}

var waiterPool = sync.Pool{
	New: func() any { return &waiter{c: make(chan struct{}, 1)} },
}

// bucket holds the waiters for every address hashing to it. Every timed waiter of
// a mutex lands in the same bucket, so its lock must park rather than spin.
type bucket struct {
	mu         sync.Mutex
	head, tail *waiter
	_          cpu.CacheLinePad
}

var buckets [bucketCount]bucket

// bucketFor hashes the address of a 32-bit word onto a bucket. The low two bits are
// always zero for an aligned word, so they are dropped.
func bucketFor(addr *uint32) *bucket {
	a := uintptr(unsafe.Pointer(addr))
	h1 := (a >> 2) + (a >> 12) + (a >> 22)
	h2 := (a >> 32) + (a >> 42)
	return &buckets[(h1+h2)%bucketCount]
}

func (b *bucket) push(w *waiter) {
	w.prev, w.next = b.tail, nil
	if b.tail == nil {
		b.head = w
	} else {
		b.tail.next = w
	}
	b.tail = w
	w.queued = true
}

func (b *bucket) remove(w *waiter) {
	if w.prev == nil {
		b.head = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		b.tail = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.prev, w.next = nil, nil
	w.queued = false
}

// enqueue queues a waiter for addr unless *addr has already moved off val.
// Checking the value under the bucket lock orders it against Wake.
func enqueue(addr *uint32, val uint32) (*bucket, *waiter) {
	b := bucketFor(addr)
	b.mu.Lock()
	if atomic.LoadUint32(addr) != val {
		b.mu.Unlock()
		return nil, nil
	}
	w := waiterPool.Get().(*waiter)
	w.addr = addr
	b.push(w)
	b.mu.Unlock()
	return b, w
}

func release(w *waiter) {
	w.addr = nil
	waiterPool.Put(w)
}

// Wait implements Parker.
func (Emulated) Wait(addr *uint32, val uint32) {
	_, w := enqueue(addr, val)
	if w == nil {
		return
	}
	<-w.c
	release(w)
}

// WaitUntil implements Parker.
func (Emulated) WaitUntil(addr *uint32, val uint32, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return false
	}
	b, w := enqueue(addr, val)
	if w == nil {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.c:
		release(w)
		return true
	case <-timer.C:
	}

	b.mu.Lock()
	if w.queued {
		b.remove(w)
		b.mu.Unlock()
		release(w)
		return false
	}
	b.mu.Unlock()

	// A Wake dequeued us concurrently with the timeout; consume its signal so the
	// pooled channel starts out empty next time.
	<-w.c
	release(w)
	return true
}

// Wake implements Parker.
func (Emulated) Wake(addr *uint32, n int) int {
	b := bucketFor(addr)
	woken := 0

	b.mu.Lock()
	for w := b.head; w != nil && woken < n; {
		next := w.next
		if w.addr == addr {
			b.remove(w)
			w.c <- struct{}{}
			woken++
		}
		w = next
	}
	b.mu.Unlock()

	return woken
}
