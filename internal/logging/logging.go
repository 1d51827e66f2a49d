// SPDX-License-Identifier: MPL-2.0

// Package logging wraps github.com/charmbracelet/log so adapters and the
// engine share one structured-logging convention, the way invowk-cli's
// sshserver package builds a prefixed logger per component.
package logging

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	defaultOnce   sync.Once
	defaultLogger *log.Logger
)

// Default returns the package-level logger used when a caller does not
// supply its own (adapter.NewBase falls back to it when given a nil
// logger; the built-in adapters build their own prefixed logger with New).
func Default() *log.Logger {
	defaultOnce.Do(func() {
		defaultLogger = New("uce")
	})
	return defaultLogger
}

// New builds a prefixed logger writing to stderr, matching
// invowk-cli/internal/sshserver.New's log.NewWithOptions call.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: prefix,
	})
}

// SetLevel adjusts the shared default logger's verbosity, used by
// engine.NewFromEnv to honor UCE_VERBOSE/UCE_QUIET (§6).
func SetLevel(level log.Level) {
	Default().SetLevel(level)
}
