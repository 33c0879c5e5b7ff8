package dmutex

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queued builds a node as a waiter would leave it after queueing on top of next.
func queued(t *testing.T, next uintptr, spin uint64, sleep uint32) *node {
	t.Helper()
	n := nodes.get()
	n.reset()
	n.next.Store(next)
	atomic.StoreUint32(&n.sleep, sleep)
	n.spin.Store(spin)
	t.Cleanup(func() { nodes.put(n) })
	return n
}

func staleHeartbeat() uint64 {
	return (nanotime()-uint64(time.Second))&stampMask<<kindBits | kindWaiting
}

func TestWakeFreshWaiter(t *testing.T) {
	a := queued(t, locked, heartbeat(), sleepIdle)

	handedOff, sleepers := wake(chainWord(a.id), locked, 0)

	assert.True(t, handedOff)
	assert.Zero(t, sleepers)
	assert.Equal(t, kindWake, kindOf(a.spin.Load()))
	assert.Equal(t, locked, a.waker.Load())
}

func TestWakeSkipsPreemptedWaiter(t *testing.T) {
	if !publishTimestamps {
		t.Skip("preemption detection is disabled")
	}
	b := queued(t, locked, heartbeat(), sleepIdle)
	a := queued(t, chainWord(b.id), staleHeartbeat(), sleepIdle)

	handedOff, _ := wake(chainWord(a.id), locked, 0)

	assert.True(t, handedOff)
	assert.Equal(t, kindSkipped, kindOf(a.spin.Load()))
	assert.Equal(t, kindWake, kindOf(b.spin.Load()))
}

func TestWakeSkipsWholeChain(t *testing.T) {
	if !publishTimestamps {
		t.Skip("preemption detection is disabled")
	}
	b := queued(t, locked, staleHeartbeat(), sleepIdle)
	a := queued(t, chainWord(b.id), staleHeartbeat(), sleepIdle)

	handedOff, sleepers := wake(chainWord(a.id), locked, 0)

	assert.False(t, handedOff, "nobody is live, the chain is exhausted")
	assert.Zero(t, sleepers)
	assert.Equal(t, kindSkipped, kindOf(a.spin.Load()))
	assert.Equal(t, kindSkipped, kindOf(b.spin.Load()))
}

func TestWakeCatchesSleeperBeforeItParks(t *testing.T) {
	b := queued(t, locked, kindAboutToWait, sleepIdle)
	a := queued(t, chainWord(b.id), kindAboutToWait, sleepParked)

	handedOff, sleepers := wake(chainWord(a.id), locked, 0)

	assert.True(t, handedOff)
	assert.Zero(t, sleepers, "the relay list goes to the new holder")
	assert.Equal(t, sleepCaught, atomic.LoadUint32(&b.sleep))
	assert.Equal(t, sleepParked, atomic.LoadUint32(&a.sleep), "a parked node is only collected")
	assert.Equal(t, a.id, b.ready.Load(), "the terminal holder gets the relay list as ready")
	assert.Zero(t, b.handoff.Load())
}

func TestWakeHandsRelayListToInnerHolder(t *testing.T) {
	c := queued(t, locked, kindAboutToWait, sleepParked)
	b := queued(t, chainWord(c.id), heartbeat(), sleepIdle)
	a := queued(t, chainWord(b.id), kindAboutToWait, sleepParked)

	handedOff, _ := wake(chainWord(a.id), locked, 0)

	require.True(t, handedOff)
	assert.Equal(t, kindWake, kindOf(b.spin.Load()))
	assert.Equal(t, a.id, b.handoff.Load())
	assert.Zero(t, b.ready.Load())
	assert.Equal(t, sleepParked, atomic.LoadUint32(&c.sleep), "the walk stops at the new holder")
}

func TestWakeCollectsParkedChain(t *testing.T) {
	b := queued(t, locked, kindAboutToWait, sleepParked)
	a := queued(t, chainWord(b.id), kindAboutToWait, sleepParked)

	handedOff, sleepers := wake(chainWord(a.id), locked, 0)

	require.False(t, handedOff)
	assert.Equal(t, b.id, sleepers)
	assert.Equal(t, a.id, b.link.Load())
	assert.Zero(t, a.link.Load())

	relay(sleepers)
	assert.Equal(t, sleepRelay, atomic.LoadUint32(&a.sleep))
	assert.Equal(t, sleepRelay, atomic.LoadUint32(&b.sleep))
}

func TestWakeStopsAtTerminalMarker(t *testing.T) {
	// The marker is a handle: the bottom node queued on a holder whose own node
	// was the state word.
	holder := queued(t, 0, kindWaiting, sleepIdle)
	marker := chainWord(holder.id)
	b := queued(t, marker, kindAboutToWait, sleepParked)
	a := queued(t, chainWord(b.id), kindAboutToWait, sleepParked)

	handedOff, sleepers := wake(chainWord(a.id), marker, 0)

	assert.False(t, handedOff)
	assert.Equal(t, b.id, sleepers)
	assert.Equal(t, kindWaiting, kindOf(holder.spin.Load()), "the marker node must not be touched")
}

func TestWakeWaitsForPublication(t *testing.T) {
	a := queued(t, locked, kindUninitialized, sleepIdle)

	go func() {
		time.Sleep(5 * time.Millisecond)
		a.spin.Store(heartbeat())
	}()

	handedOff, _ := wake(chainWord(a.id), locked, 0)
	assert.True(t, handedOff)
	assert.Equal(t, kindWake, kindOf(a.spin.Load()))
}

func TestPreempted(t *testing.T) {
	now := nanotime()
	fresh := now<<kindBits | kindWaiting
	future := (now+uint64(time.Millisecond))&stampMask<<kindBits | kindWaiting
	stale := (now-uint64(time.Second))&stampMask<<kindBits | kindWaiting

	assert.False(t, preempted(fresh, now))
	assert.False(t, preempted(future, now), "a heartbeat newer than now is fresh")
	assert.True(t, preempted(stale, now))
}
