// Package logging builds the one shared, leveled logger every
// component logs through, per §4.16: log records carry a component tag
// as a structured field, never as a string-formatted prefix.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Level re-exports the underlying logger's level type so callers never
// need to import charmbracelet/log directly.
type Level = log.Level

const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
)

// Component names used as the "component" structured field, matching
// §4.16's list.
const (
	ComponentKISS       = "kiss"
	ComponentAX25       = "ax25"
	ComponentAPRS       = "aprs"
	ComponentStation    = "station"
	ComponentDigipeater = "digipeater"
	ComponentKISSBridge = "kissbridge"
	ComponentAGWPE      = "agwpe"
	ComponentSSE        = "sse"
)

// New builds the root logger, writing to w at the given level.
func New(w io.Writer, level log.Level) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	logger.SetLevel(level)
	return logger
}

// Default builds the root logger writing to stderr at info level, the
// common case for cmd/tncd.
func Default() *log.Logger {
	return New(os.Stderr, log.InfoLevel)
}

// For returns a child logger tagged with the given component, so every
// record it emits carries "component=<name>" as a structured field
// rather than a formatted string prefix.
func For(logger *log.Logger, component string) *log.Logger {
	return logger.With("component", component)
}

// FramingError logs a dropped-bytes framing error at warn, per §4.16's
// rule that routine link noise on a shared radio channel never rises
// to error level.
func FramingError(logger *log.Logger, reason string, droppedBytes int) {
	logger.Warn("framing error", "reason", reason, "dropped_bytes", droppedBytes)
}

// TransportReconnect logs a transport reconnect attempt at info.
func TransportReconnect(logger *log.Logger, transport string) {
	logger.Info("transport reconnecting", "transport", transport)
}
