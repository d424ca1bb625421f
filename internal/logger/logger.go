// Package logger provides process-wide logging for suitelink.
// Warnings and errors are always written; debug and info messages only
// when verbose mode is enabled via the --verbose flag.
package logger

import (
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	mu      sync.RWMutex
	verbose bool
	base    = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *log.Logger {
	l := log.New()
	l.SetOutput(w)
	l.SetLevel(log.WarnLevel)
	l.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
	})
	return l
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		base.SetLevel(log.DebugLevel)
	} else {
		base.SetLevel(log.WarnLevel)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// Debug logs a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	entry().Debugf(format, args...)
}

// Info logs an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	entry().Infof(format, args...)
}

// Warn logs a warning. Warnings are always written.
func Warn(format string, args ...any) {
	entry().Warnf(format, args...)
}

// Error logs an error. Errors are always written.
func Error(format string, args ...any) {
	entry().Errorf(format, args...)
}

// Section logs a section header if verbose mode is enabled.
func Section(name string) {
	entry().Debugf("=== %s ===", name)
}

// With returns an entry carrying structured fields, e.g. the provider name.
func With(fields map[string]any) *log.Entry {
	return entry().WithFields(log.Fields(fields))
}

// Mask hides all but the first four characters of a secret.
func Mask(secret string) string {
	switch {
	case secret == "":
		return "(empty)"
	case len(secret) <= 4:
		return "****"
	default:
		return secret[:4] + "****"
	}
}

func entry() *log.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return log.NewEntry(base)
}
