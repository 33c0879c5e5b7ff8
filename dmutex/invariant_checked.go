//go:build dmutex_checks

package dmutex

// checked reports whether internal invariants are verified at runtime.
const checked = true

// invariant panics if an internal invariant does not hold. A failure is a bug in this
// package or a misused Proxy, never a recoverable condition.
func invariant(cond bool, msg string) {
	if !cond {
		panic("dmutex: " + msg)
	}
}
