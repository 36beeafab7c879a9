package trace

import (
	"bytes"
	"runtime"
	"strconv"
)

// CurrentGoroutine returns the ID of the calling goroutine, parsed from the
// header of runtime.Stack ("goroutine 123 [running]:"). It returns 0 if the
// header cannot be parsed.
func CurrentGoroutine() uint64 {
	var buf [64]byte

	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}

	b = b[len(prefix):]

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
