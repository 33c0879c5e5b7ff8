package dmutex

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// The state word holds one of:
//
//	0                       free
//	locked                  held, nobody queued behind the holder
//	handle|locked           held, handle is the most recently queued waiter
//
// optionally with timed set while goroutines sleep in TryLockUntil. A handle is a
// waiter id shifted past the tag bits, so the tags never collide with it.
const (
	locked    uintptr = 1 << 0
	timed     uintptr = 1 << 1
	tagBits           = 2
	tagMask   uintptr = 1<<tagBits - 1
	maxHandle uintptr = 1<<32 - 1
)

type stateKind uint8

const (
	stateFree stateKind = iota
	stateLocked
	stateChain
)

func (k stateKind) String() string {
	switch k {
	case stateFree:
		return "free"
	case stateLocked:
		return "locked"
	case stateChain:
		return "chain"
	default:
		return "invalid"
	}
}

// stateOf decodes a state word into its logical form.
func stateOf(word uintptr) (kind stateKind, handle uintptr, hasTimedWaiters bool) {
	hasTimedWaiters = word&timed != 0
	handle = word &^ tagMask
	switch {
	case handle != 0:
		kind = stateChain
	case word&locked != 0:
		kind = stateLocked
	default:
		kind = stateFree
	}
	return kind, handle, hasTimedWaiters
}

func handleOf(id uint32) uintptr { return uintptr(id) << tagBits }

func idOf(word uintptr) uint32 { return uint32(word >> tagBits) }

// chainWord is the value a waiter swaps into the state word to queue itself.
func chainWord(id uint32) uintptr { return handleOf(id) | locked }

func stripTimed(word uintptr) uintptr { return word &^ timed }

func hasTimed(word uintptr) bool { return word&timed != 0 }

// Atomic is the set of operations the mutex needs from its state word. W is the
// storage type embedded in the mutex; the pointer type implements the operations.
type Atomic[W any] interface {
	*W
	Load() uintptr
	Swap(new uintptr) (old uintptr)
	CompareAndSwap(old, new uintptr) (swapped bool)
	Or(mask uintptr) (old uintptr)
	// Addr exposes the word for futex waits on it.
	Addr() *uintptr
}

// Word is the default state word. The zero value is a free mutex.
type Word struct {
	v uintptr
}

// Load atomically loads the word.
func (w *Word) Load() uintptr { return atomic.LoadUintptr(&w.v) }

// Swap atomically stores new and returns the previous value.
func (w *Word) Swap(new uintptr) uintptr { return atomic.SwapUintptr(&w.v, new) }

// CompareAndSwap executes the compare-and-swap operation on the word.
func (w *Word) CompareAndSwap(old, new uintptr) bool {
	return atomic.CompareAndSwapUintptr(&w.v, old, new)
}

// Or atomically sets the bits in mask and returns the previous value.
func (w *Word) Or(mask uintptr) uintptr { return atomic.OrUintptr(&w.v, mask) }

// Addr returns the address of the word.
func (w *Word) Addr() *uintptr { return &w.v }

// lowHalf returns the 32 bits of the word that futex waits compare. Handles fit in
// 32 bits, so the low half alone tells every state apart.
func lowHalf(p *uintptr) *uint32 {
	if cpu.IsBigEndian && unsafe.Sizeof(uintptr(0)) == 8 {
		return (*uint32)(unsafe.Add(unsafe.Pointer(p), 4))
	}
	return (*uint32)(unsafe.Pointer(p))
}
