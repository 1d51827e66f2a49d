// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/corexec/uce/internal/envcfg"
	"github.com/corexec/uce/internal/logging"
)

var errNotBoolToken = errors.New("engine: UCE_SHELL is not a bool token")

// NewFromEnv builds an Engine from Defaults() with the UCE_* namespace
// (§6, via internal/envcfg) layered on top. UCE_VERBOSE/UCE_QUIET adjust the
// shared default logger's level as a side effect, matching how verbose/quiet
// flags behave everywhere else in this codebase: last one read wins if both
// are set, with quiet taking precedence since it's the more conservative
// choice.
func NewFromEnv() (*Engine, error) {
	values, err := envcfg.Load()
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if values.Timeout != nil {
		cfg.DefaultTimeoutMs = values.Timeout.Milliseconds()
	}
	if values.Shell != "" {
		if enabled, perr := parseShellToken(values.Shell); perr == nil {
			cfg.Shell = enabled
		}
	}
	cfg.ShellPrefix = values.Prefix
	cfg.ShellPostfix = values.Postfix
	cfg.PreferLocal = values.PreferLocal
	if values.Detached != nil {
		cfg.Detached = *values.Detached
	}

	if values.Verbose != nil && *values.Verbose {
		logging.SetLevel(log.DebugLevel)
	}
	if values.Quiet != nil && *values.Quiet {
		logging.SetLevel(log.ErrorLevel)
	}

	return New(cfg)
}

// parseShellToken distinguishes UCE_SHELL's bool form ("true"/"false") from
// an explicit shell path: a successful bool parse means enable/disable the
// platform default shell; anything else is treated as a path and left for
// the caller to thread through a per-command WithShellPath option instead,
// since Config has no per-command shell-path override.
func parseShellToken(raw string) (bool, error) {
	switch raw {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, errNotBoolToken
	}
}
