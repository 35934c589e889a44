package sched

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the current goroutine's id by parsing the first line
// of the stack trace ("goroutine 18 [running]:"). It is only used on the
// assertion path, so the cost of runtime.Stack does not matter.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
