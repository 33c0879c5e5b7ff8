package dmutex

import (
	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"
)

// Kinds published in the low byte of node.spin. The remaining bits carry the
// heartbeat timestamp of a spinning waiter.
const (
	kindUninitialized uint64 = iota
	kindWaiting
	kindWake
	kindSkipped
	kindAboutToWait

	kindBits = 8
	kindMask = 1<<kindBits - 1
)

// States of node.sleep, the word a waiter parks on.
const (
	sleepIdle   uint32 = iota // not parked, can still be caught
	sleepParked               // committed to parking
	sleepCaught               // a waker handed over the lock before the waiter parked
	sleepRelay                // woken through a relay list, must queue again
)

func kindOf(spin uint64) uint64 { return spin & kindMask }

// node is the per-acquisition record of a goroutine blocked in Lock.
//
// A node belongs to the Lock call that took it from the arena. Other goroutines
// reach it through its handle, in the state word or in another node's next, and
// may only touch it while the owning goroutine is still waiting.
type node struct {
	spin  atomic.Uint64
	sleep uint32 // futex word, accessed with sync/atomic

	// next is the state word this waiter swapped out, timed bit stripped. It is
	// written before spin leaves kindUninitialized.
	next atomic.Uintptr

	// Relay fields, written by the waker before it signals.
	waker   atomic.Uintptr
	handoff atomic.Uint32
	ready   atomic.Uint32

	// link chains parked nodes into a relay list.
	link atomic.Uint32

	free atomic.Uint32
	id   uint32

	_ cpu.CacheLinePad
}

// reset prepares the node for being queued. spin must read uninitialized before the
// handle is published.
func (n *node) reset() {
	n.spin.Store(kindUninitialized)
	n.waker.Store(0)
	n.handoff.Store(0)
	n.ready.Store(0)
	n.link.Store(0)
}

const (
	chunkBits = 8
	chunkSize = 1 << chunkBits
	maxChunks = 1 << 14
	maxNodes  = chunkSize * maxChunks
)

// arena hands out nodes that never move and are never freed, so their ids can be
// published as plain integers. Released nodes go onto a lock-free free list whose
// head carries a generation counter in its upper half.
type arena struct {
	free   atomic.Uint64
	count  atomic.Uint32
	chunks [maxChunks]atomic.Pointer[[chunkSize]node]
}

var nodes arena

func (a *arena) at(id uint32) *node {
	return &a.chunks[id>>chunkBits].Load()[id&(chunkSize-1)]
}

func (a *arena) get() *node {
	for {
		head := a.free.Load()
		id := uint32(head)
		if id == 0 {
			break
		}
		n := a.at(id)
		next := uint64(n.free.Load())
		if a.free.CompareAndSwap(head, (head>>32+1)<<32|next) {
			return n
		}
	}
	return a.grow()
}

func (a *arena) grow() *node {
	id := a.count.Inc()
	if id >= maxNodes || handleOf(id) > maxHandle {
		panic("dmutex: too many goroutines waiting at once")
	}
	chunk := &a.chunks[id>>chunkBits]
	if chunk.Load() == nil {
		chunk.CompareAndSwap(nil, new([chunkSize]node))
	}
	n := a.at(id)
	n.id = id
	return n
}

func (a *arena) put(n *node) {
	for {
		head := a.free.Load()
		n.free.Store(uint32(head))
		if a.free.CompareAndSwap(head, (head>>32+1)<<32|uint64(n.id)) {
			return
		}
	}
}
