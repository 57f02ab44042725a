// Package logging provides the operational slog logger shared by every
// tenantgate component.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func init() {
	opLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// Op returns the operational logger.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetLogger replaces the operational logger. Tests use it to capture output.
func SetLogger(l *slog.Logger) {
	if l != nil {
		opLogger.Store(l)
	}
}

// SetLevelFromString sets the shared level. Unknown names are ignored.
func SetLevelFromString(level string) {
	if l, ok := levels[strings.ToLower(level)]; ok {
		logLevel.Set(l)
	}
}

// ValidLevel reports whether level is accepted by SetLevelFromString.
func ValidLevel(level string) bool {
	_, ok := levels[strings.ToLower(level)]
	return ok
}
