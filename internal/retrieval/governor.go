package retrieval

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Governor is the admission-control contract for memory-sensitive work.
// TryAcquire reserves an estimated cost if headroom under thresholdBytes
// allows; a zero threshold means the implementation's default. Release
// returns a reservation. Implementations may be best-effort.
type Governor interface {
	TryAcquire(estimatedBytes, thresholdBytes uint64) bool
	Release(estimatedBytes uint64)
}

// MemoryGovernor is a best-effort Governor backed by runtime heap statistics.
// Each call checks against the caller's threshold, so a degraded budget
// profile admits under a tighter ceiling than the normal one. When over the
// threshold it lets the caller ask the runtime to return memory to the OS.
// It mitigates pressure on a small host rather than guaranteeing a hard
// ceiling.
type MemoryGovernor struct {
	defaultThresholdBytes uint64
	readHeap              func() uint64 // injectable for tests

	mu       sync.Mutex
	reserved uint64
}

// NewMemoryGovernor creates a governor with the given default threshold in MiB.
func NewMemoryGovernor(thresholdMB int) *MemoryGovernor {
	return &MemoryGovernor{
		defaultThresholdBytes: uint64(thresholdMB) * 1024 * 1024,
		readHeap:              heapInUse,
	}
}

// TryAcquire reserves estimatedBytes if current heap usage plus outstanding
// reservations stays under thresholdBytes (zero means the default).
func (g *MemoryGovernor) TryAcquire(estimatedBytes, thresholdBytes uint64) bool {
	if thresholdBytes == 0 {
		thresholdBytes = g.defaultThresholdBytes
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readHeap()+g.reserved+estimatedBytes > thresholdBytes {
		return false
	}
	g.reserved += estimatedBytes
	return true
}

// Release returns a prior reservation.
func (g *MemoryGovernor) Release(estimatedBytes uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if estimatedBytes > g.reserved {
		g.reserved = 0
		return
	}
	g.reserved -= estimatedBytes
}

// Reclaim asks the runtime to return unused memory to the OS and waits
// briefly for the effect to land. Best-effort.
func (g *MemoryGovernor) Reclaim() {
	debug.FreeOSMemory()
	time.Sleep(50 * time.Millisecond)
}

func heapInUse() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapInuse
}
