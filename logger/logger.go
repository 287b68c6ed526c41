// Package logger prints timestamped lines to standard output, the way the
// teacher's logger/logger-glog packages give every other component of the
// node a single place to write through rather than calling fmt.Println
// inline. The wire format here is fixed by the spec, so there is no leveled
// V(n) filtering: every call to Log/Logf produces exactly one line.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu       sync.Mutex
	out      io.Writer = os.Stdout
	start    time.Time
	startSet bool
)

// SetOutput redirects subsequent log lines; used by tests that need to
// capture output instead of writing to the process's stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Reset restarts the elapsed-time origin at the current time. Tests that want reproducible
// "00:00:00" prefixes call this before their first Log call.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	start = time.Now()
	startSet = true
}

// Log writes one line: the elapsed time since the first call (or the last
// Reset), " - ", the concatenation of parts, and a trailing newline.
func Log(parts ...string) {
	mu.Lock()
	defer mu.Unlock()
	if !startSet {
		start = time.Now()
		startSet = true
	}
	fmt.Fprint(out, formatElapsed(time.Since(start)))
	fmt.Fprint(out, " - ")
	for _, p := range parts {
		fmt.Fprint(out, p)
	}
	fmt.Fprint(out, "\n")
}

// Logf is Log with fmt.Sprintf-style formatting of a single payload.
func Logf(format string, args ...interface{}) {
	Log(fmt.Sprintf(format, args...))
}

// formatElapsed renders d as HH:MM:SS. The hours field is not clamped to
// two digits: a process running for more than 99 hours grows the field
// instead of wrapping.
func formatElapsed(d time.Duration) string {
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := total % 3600 / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
