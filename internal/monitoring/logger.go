// Package monitoring carries the diagnostic logger shared by the
// classification pipeline. The engine logs every confirmation decision and
// anomaly; tests mute or capture the stream by swapping the logger.
package monitoring

import "log"

// Logf is the pipeline diagnostic logger. It defaults to log.Printf and may
// be replaced with SetLogger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
