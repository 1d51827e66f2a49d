// SPDX-License-Identifier: MPL-2.0

package engine

import "testing"

func TestNewFromEnv_LayersOverDefaults(t *testing.T) {
	t.Setenv("UCE_TIMEOUT", "5s")
	t.Setenv("UCE_SHELL", "true")
	t.Setenv("UCE_PREFIX", "set -euo pipefail;")
	t.Setenv("UCE_VERBOSE", "")
	t.Setenv("UCE_QUIET", "")

	e, err := NewFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.cfg.DefaultTimeoutMs != 5000 {
		t.Errorf("DefaultTimeoutMs = %d, want 5000", e.cfg.DefaultTimeoutMs)
	}
	if !e.cfg.Shell {
		t.Error("expected Shell = true")
	}
	if e.cfg.ShellPrefix != "set -euo pipefail;" {
		t.Errorf("ShellPrefix = %q", e.cfg.ShellPrefix)
	}
}

func TestNewFromEnv_MalformedValuePropagatesError(t *testing.T) {
	t.Setenv("UCE_TIMEOUT", "not-a-duration")
	if _, err := NewFromEnv(); err == nil {
		t.Fatal("expected an error for a malformed UCE_TIMEOUT")
	}
}

func TestParseShellToken(t *testing.T) {
	if v, err := parseShellToken("true"); err != nil || !v {
		t.Errorf("parseShellToken(true) = %v, %v", v, err)
	}
	if v, err := parseShellToken("false"); err != nil || v {
		t.Errorf("parseShellToken(false) = %v, %v", v, err)
	}
	if _, err := parseShellToken("/bin/zsh"); err == nil {
		t.Error("expected a path-form token to be rejected as non-bool")
	}
}
