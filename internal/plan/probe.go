package plan

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
)

var (
	autoOnce  sync.Once
	autoCount int
)

// AutoProbe resolves the symbolic "auto" thread count to the number of
// logical execution units visible to the process.
//
// The fallback chain is: logical CPU count, physical core count,
// runtime.NumCPU, and finally 1. Resolution never fails.
//
// The result is memoized for the lifetime of the process so that every
// plan built from "auto" in one run resolves to the same value.
func AutoProbe() int {
	autoOnce.Do(func() {
		autoCount = detectCPUs()
	})
	return autoCount
}

func detectCPUs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
