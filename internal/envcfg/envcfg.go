// SPDX-License-Identifier: MPL-2.0

// Package envcfg parses the UCE_* environment namespace (§6) the way
// invowk-cli's internal/config package uses Viper for its TOML+env
// configuration — except this namespace is env-only, so Load binds the
// keys with AutomaticEnv/BindEnv rather than reading a config file.
package envcfg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/corexec/uce/internal/issue"
)

// Prefix is the recognized environment namespace (§6 fixes this as "UCE").
const Prefix = "UCE"

var keys = []string{
	"timeout", "verbose", "quiet", "prefer_local", "detached",
	"shell", "prefix", "postfix", "kill_signal", "timeout_signal",
}

// ConfigError reports a malformed UCE_* value. It wraps an
// issue.ActionableError carrying the offending key/value as its resource.
type ConfigError struct {
	*issue.ActionableError
}

func newConfigError(key, raw string, cause error) *ConfigError {
	return &ConfigError{
		issue.NewErrorContext("parse_env_config").
			WithResource(fmt.Sprintf("%s_%s=%q", Prefix, strings.ToUpper(key), raw)).
			WithSuggestion("check the value against §6's expected format for this key").
			Wrap(cause).
			Build(),
	}
}

// Values holds the parsed UCE_* namespace. Pointer/empty-string fields
// distinguish "unset" from "set to the zero value" — callers layer only
// the fields that are non-nil/non-empty onto their own defaults.
type Values struct {
	Timeout *time.Duration
	Verbose *bool
	Quiet   *bool
	Detached *bool

	// PreferLocal and Shell accept either a bool token or a path (to an
	// executable, or a shell binary respectively), per §6 — left as raw
	// strings since the caller, not this package, knows what a path means
	// for its own adapter wiring.
	PreferLocal string

	Shell         string
	Prefix        string
	Postfix       string
	KillSignal    string
	TimeoutSignal string
}

// Load reads the UCE_* namespace from the process environment. Unknown keys
// are ignored (AutomaticEnv only looks up the keys this package binds);
// malformed values for a recognized key return a *ConfigError.
func Load() (*Values, error) {
	v := viper.New()
	v.SetEnvPrefix(Prefix)
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, newConfigError(k, "", err)
		}
	}

	out := &Values{}

	if raw := v.GetString("timeout"); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return nil, newConfigError("timeout", raw, err)
		}
		out.Timeout = &d
	}
	if raw := v.GetString("verbose"); raw != "" {
		b, err := parseBool(raw)
		if err != nil {
			return nil, newConfigError("verbose", raw, err)
		}
		out.Verbose = &b
	}
	if raw := v.GetString("quiet"); raw != "" {
		b, err := parseBool(raw)
		if err != nil {
			return nil, newConfigError("quiet", raw, err)
		}
		out.Quiet = &b
	}
	if raw := v.GetString("detached"); raw != "" {
		b, err := parseBool(raw)
		if err != nil {
			return nil, newConfigError("detached", raw, err)
		}
		out.Detached = &b
	}

	out.PreferLocal = v.GetString("prefer_local")
	out.Shell = v.GetString("shell")
	out.Prefix = v.GetString("prefix")
	out.Postfix = v.GetString("postfix")
	out.KillSignal = v.GetString("kill_signal")
	out.TimeoutSignal = v.GetString("timeout_signal")

	return out, nil
}

// parseDuration accepts a bare integer (milliseconds, §6's "<n>" form) or
// any of Go's duration suffixes ("<n>ms", "<n>s", "<n>m", ...).
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %w", err)
	}
	return d, nil
}

// parseBool accepts the usual truthy/falsy token set: yes/y/on and no/n/off
// (any case) directly, and everything else (1/0, t/f, true/false, ...) via
// Viper's own caster.
func parseBool(raw string) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	b, err := cast.ToBoolE(trimmed)
	if err != nil {
		return false, fmt.Errorf("not a bool: %w", err)
	}
	return b, nil
}
