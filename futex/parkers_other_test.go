//go:build !linux

package futex

func addOSParker(map[string]Parker) {}
