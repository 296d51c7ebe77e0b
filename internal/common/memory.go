package common

import "runtime"

// ResidentMemoryMB returns the process's in-use heap in megabytes. Used by
// the engine's between-batch memory poll to decide when to drop the resume
// cache.
func ResidentMemoryMB() int {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int(m.HeapInuse / (1024 * 1024))
}
