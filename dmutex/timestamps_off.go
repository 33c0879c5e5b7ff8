//go:build dmutex_notimestamps

package dmutex

const publishTimestamps = false
