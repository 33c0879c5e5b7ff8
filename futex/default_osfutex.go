//go:build linux && dmutex_osfutex

package futex

// Default returns the Parker selected at build time.
func Default() Parker { return OS{} }
