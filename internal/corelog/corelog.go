// Package corelog is a one-line print shim for the storage packages:
// plain prints at operationally significant points. Centralizing the
// call here keeps every call site a single line and swappable later.
package corelog

import "fmt"

// Printf writes one operationally significant line, e.g. "segment
// published" or "compaction run finished".
func Printf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
