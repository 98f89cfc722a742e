// Package notice carries ephemeral user-facing notices (the toast layer of
// the UI). Failures in this core never crash the process; anything that is
// not a transcript-visible error degrades into a notice.
package notice

import "log"

// Level classifies a notice.
type Level string

const (
	Info  Level = "info"
	Error Level = "error"
)

// Sink receives user-facing notices.
type Sink interface {
	Notify(level Level, message string)
}

// LogSink writes notices to the process log. It is the default sink for the
// terminal client.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(level Level, message string) {
	log.Printf("[notice] %s: %s", level, message)
}

// Func adapts a function to the Sink interface.
type Func func(level Level, message string)

// Notify implements Sink.
func (f Func) Notify(level Level, message string) { f(level, message) }
