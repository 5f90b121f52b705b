// Package monitoring holds the process-wide diagnostic logger used by the
// tracker's components.
package monitoring

import (
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests mute it; the CLI redirects it with -quiet.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes every line with "[name] " and
// resolves Logf at call time, so later SetLogger calls still apply.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + strings.TrimSpace(name) + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
