package bollywood

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns the id of the calling goroutine, parsed out of
// runtime.Stack. Go has no public equivalent of std::this_thread::get_id,
// which the original runtime used to assert that a manually locked actor
// is only ever touched from the thread that locked it. Parsing the stack
// header is the standard (if informal) workaround; it is used here only
// for debug-build-style assertions, never on a hot path.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	b = bytes.TrimPrefix(b, []byte(prefix))

	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
