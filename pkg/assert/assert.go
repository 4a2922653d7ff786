// Package assert guards programming contracts. A failed assertion is a caller
// bug, so it panics instead of returning an error.
package assert

import "fmt"

// Assert panics with the formatted message when cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
