package indexer

import "time"

// nowNano returns the current time as Unix nanoseconds. A package-level var
// so tests can override it for deterministic sync_time assertions.
var nowNano = func() int64 {
	return time.Now().UnixNano()
}
