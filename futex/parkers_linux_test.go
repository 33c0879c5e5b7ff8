//go:build linux

package futex

func addOSParker(ps map[string]Parker) { ps["os"] = OS{} }
