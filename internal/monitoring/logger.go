// Package monitoring holds the process-wide diagnostic logger and helpers
// for keeping per-frame logging down to a readable rate.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. Components call it instead
// of the log package so tests can capture or mute output with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. A nil logger discards everything.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that prepends "[component] " to every line
// and always resolves Logf at call time.
func Prefixed(component string) func(format string, v ...interface{}) {
	prefix := "[" + component + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
