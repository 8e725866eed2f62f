// Package monitoring provides the shared diagnostic logger for the engine.
package monitoring

import "log"

// Logf is the package-level diagnostic logger used by all engine
// components. It defaults to log.Printf; tests and embedders can
// redirect or mute it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// Warnf logs a recoverable condition. Recoverable warnings (scorer
// substitution, rejected window ticks, clamped outliers) go through
// here so they can be counted or filtered separately from plain
// diagnostics.
var Warnf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	Logf("warn: "+format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, which also silences Warnf.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
