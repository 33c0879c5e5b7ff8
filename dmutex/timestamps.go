//go:build !dmutex_notimestamps

package dmutex

// publishTimestamps enables heartbeats in spinning waiters and the preemption
// detection that relies on them.
const publishTimestamps = true
