//go:build linux

package futex

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWait        = 0
	futexWake        = 1
	futexPrivateFlag = 128
)

// OS is a Parker backed by the Linux futex system call. Blocked goroutines hold
// their OS thread for the duration of the wait.
type OS struct{}

func futex(addr *uint32, op int, val uint32, ts *unix.Timespec) (uintptr, unix.Errno) {
	r, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(op|futexPrivateFlag),
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)
	return r, errno
}

// Wait implements Parker.
func (OS) Wait(addr *uint32, val uint32) {
	switch _, errno := futex(addr, futexWait, val, nil); errno {
	case 0, unix.EAGAIN, unix.EINTR:
	default:
		panic("futex: wait: " + errno.Error())
	}
}

// WaitUntil implements Parker. FUTEX_WAIT takes a relative timeout, so it is
// recomputed after every interrupted wait.
func (OS) WaitUntil(addr *uint32, val uint32, deadline time.Time) bool {
	for {
		d := time.Until(deadline)
		if d <= 0 {
			return false
		}
		ts := unix.NsecToTimespec(d.Nanoseconds())
		switch _, errno := futex(addr, futexWait, val, &ts); errno {
		case 0, unix.EAGAIN:
			return true
		case unix.ETIMEDOUT:
			return false
		case unix.EINTR:
		default:
			panic("futex: wait: " + errno.Error())
		}
	}
}

// Wake implements Parker.
func (OS) Wake(addr *uint32, n int) int {
	r, errno := futex(addr, futexWake, uint32(n), nil)
	if errno != 0 {
		panic("futex: wake: " + errno.Error())
	}
	return int(r)
}
