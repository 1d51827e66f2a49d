// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"testing"

	"github.com/corexec/uce/pkg/command"
)

func TestTemplate_InterpolatesAndRunsAsShell(t *testing.T) {
	e, _ := newMockEngine(t)

	h := e.With().With(command.WithAdapter(command.AdapterMock)).
		Template([]string{"echo ", ""}, []any{"hi there"})

	cmd := h.cmd
	if !cmd.ShellEnabled {
		t.Error("Template should enable shell mode")
	}
	if cmd.Program != "echo 'hi there'" {
		t.Errorf("interpolated script = %q", cmd.Program)
	}
}

func TestTemplate_EngineLevelDelegatesToDefaultChain(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := e.Template([]string{"echo ", ""}, []any{"x"})
	if h.cmd == nil {
		t.Fatal("expected a built command")
	}
	if h.cmd.Program != "echo x" {
		t.Errorf("got %q", h.cmd.Program)
	}
}
