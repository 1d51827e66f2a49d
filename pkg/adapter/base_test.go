// SPDX-License-Identifier: MPL-2.0

package adapter

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

func TestMergeDefaults_FillsZeroValues(t *testing.T) {
	b := NewBase("test", nil)
	cmd, _ := command.New("echo", command.WithEnv(map[string]string{"A": "1"}))
	merged := b.MergeDefaults(cmd, Defaults{Cwd: "/tmp", TimeoutMs: 5000, Env: map[string]string{"B": "2"}})
	if merged.Cwd != "/tmp" {
		t.Errorf("got cwd %q", merged.Cwd)
	}
	if merged.TimeoutMs != 5000 {
		t.Errorf("got timeout %d", merged.TimeoutMs)
	}
	if merged.Env["A"] != "1" || merged.Env["B"] != "2" {
		t.Errorf("got env %v", merged.Env)
	}
	if cmd.Cwd != "" {
		t.Error("original command mutated")
	}
}

func TestMergeDefaults_CommandOverridesDefaults(t *testing.T) {
	b := NewBase("test", nil)
	cmd, _ := command.New("echo", command.WithCwd("/home"), command.WithEnv(map[string]string{"A": "override"}))
	merged := b.MergeDefaults(cmd, Defaults{Cwd: "/tmp", Env: map[string]string{"A": "default"}})
	if merged.Cwd != "/home" {
		t.Errorf("got cwd %q", merged.Cwd)
	}
	if merged.Env["A"] != "override" {
		t.Errorf("got env %v", merged.Env)
	}
}

func TestComposeEnv_PathConcatenated(t *testing.T) {
	os.Setenv("UCE_TEST_PATH_PROBE", "")
	b := NewBase("test", nil)
	cmd, _ := command.New("echo", command.WithEnv(map[string]string{"PATH": "/extra/bin"}))
	out := b.ComposeEnv(cmd, Defaults{})
	var pathVal string
	for _, kv := range out {
		if strings.HasPrefix(kv, "PATH=") {
			pathVal = strings.TrimPrefix(kv, "PATH=")
		}
	}
	if !strings.HasPrefix(pathVal, "/extra/bin"+string(os.PathListSeparator)) {
		t.Errorf("expected PATH concatenation, got %q", pathVal)
	}
}

func TestComposeEnv_NonPathOverridesReplace(t *testing.T) {
	b := NewBase("test", nil)
	cmd, _ := command.New("echo", command.WithEnv(map[string]string{"HOME": "/override"}))
	out := b.ComposeEnv(cmd, Defaults{})
	found := false
	for _, kv := range out {
		if kv == "HOME=/override" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected HOME override present, got %v", out)
	}
}

func TestPreSpawnCancelErr(t *testing.T) {
	b := NewBase("test", nil)
	tok := command.NewCancelToken()
	tok.Cancel()
	cmd, _ := command.New("echo", command.WithCancel(tok))
	err := b.PreSpawnCancelErr(cmd)
	if err == nil {
		t.Fatal("expected error for pre-cancelled token")
	}
	aue, ok := err.(*result.AdapterUnavailableError)
	if !ok {
		t.Fatalf("expected *result.AdapterUnavailableError, got %T", err)
	}
	if aue.Operation != "aborted" {
		t.Errorf("got operation %q", aue.Operation)
	}

	cmd2, _ := command.New("echo")
	if err := b.PreSpawnCancelErr(cmd2); err != nil {
		t.Errorf("expected nil for command without cancel token, got %v", err)
	}
}

func TestTimeoutContext_FiresTimeout(t *testing.T) {
	b := NewBase("test", nil)
	cmd, _ := command.New("sleep", command.WithTimeout(10))
	ctx, timedOut, stop := b.TimeoutContext(context.Background(), cmd, nil)
	defer stop()

	<-ctx.Done()
	time.Sleep(5 * time.Millisecond)
	if !timedOut() {
		t.Error("expected timedOut() true after deadline")
	}
}

func TestTimeoutContext_CancelTokenForwarded(t *testing.T) {
	b := NewBase("test", nil)
	tok := command.NewCancelToken()
	cmd, _ := command.New("sleep", command.WithCancel(tok))
	ctx, timedOut, stop := b.TimeoutContext(context.Background(), cmd, nil)
	defer stop()

	tok.Cancel()
	<-ctx.Done()
	if timedOut() {
		t.Error("expected timedOut() false for external cancellation")
	}
}

func TestTimeoutContext_CleanupRunsOnce(t *testing.T) {
	b := NewBase("test", nil)
	cmd, _ := command.New("sleep", command.WithTimeout(5))
	var calls int
	ctx, _, stop := b.TimeoutContext(context.Background(), cmd, func() { calls++ })
	<-ctx.Done()
	time.Sleep(5 * time.Millisecond)
	stop()
	if calls != 1 {
		t.Errorf("expected cleanup called once, got %d", calls)
	}
}

func TestApplyThrowPolicy(t *testing.T) {
	b := NewBase("test", nil)
	ok := &result.Result{ExitCode: 0}
	res, err := b.ApplyThrowPolicy(true, "echo ok", ok)
	if err != nil || res != ok {
		t.Fatalf("expected success passthrough, got res=%v err=%v", res, err)
	}

	failing := &result.Result{ExitCode: 1}
	res, err = b.ApplyThrowPolicy(true, "false", failing)
	if err == nil || res != nil {
		t.Fatalf("expected throw on nonzero exit, got res=%v err=%v", res, err)
	}
	if _, ok := err.(*result.CommandFailedError); !ok {
		t.Errorf("expected *result.CommandFailedError, got %T", err)
	}

	res, err = b.ApplyThrowPolicy(false, "false", failing)
	if err != nil || res != failing {
		t.Errorf("expected no throw when policy disabled, got res=%v err=%v", res, err)
	}
}

func TestWrapShellScript_NoopWhenShellDisabledOrUnset(t *testing.T) {
	b := NewBase("test", nil)

	cmd, _ := command.New("echo", command.WithShellPrefix("set -e"))
	if got := b.WrapShellScript(cmd, "echo hi"); got != "echo hi" {
		t.Errorf("expected unwrapped script when shell disabled, got %q", got)
	}

	shellCmd, _ := command.New("echo", command.WithShell(true))
	if got := b.WrapShellScript(shellCmd, "echo hi"); got != "echo hi" {
		t.Errorf("expected unwrapped script when no prefix/postfix set, got %q", got)
	}
}

func TestWrapShellScript_SplicesPrefixAndPostfix(t *testing.T) {
	b := NewBase("test", nil)
	cmd, _ := command.New("echo",
		command.WithShell(true),
		command.WithShellPrefix("set -euo pipefail"),
		command.WithShellPostfix("echo done"))

	got := b.WrapShellScript(cmd, "echo hi")
	want := "set -euo pipefail\necho hi\necho done"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWrapShellScript_PrefixOnly(t *testing.T) {
	b := NewBase("test", nil)
	cmd, _ := command.New("echo", command.WithShell(true), command.WithShellPrefix("set -e"))
	if got := b.WrapShellScript(cmd, "echo hi"); got != "set -e\necho hi" {
		t.Errorf("got %q", got)
	}
}

func TestEffectiveThrow_OverrideWinsOverDefault(t *testing.T) {
	b := NewBase("test", nil)

	cmd, _ := command.New("echo")
	if !b.EffectiveThrow(cmd, true) {
		t.Error("expected default true to apply when no override set")
	}
	if b.EffectiveThrow(cmd, false) {
		t.Error("expected default false to apply when no override set")
	}

	overridden, _ := command.New("echo", command.WithThrowOnNonzero(false))
	if b.EffectiveThrow(overridden, true) {
		t.Error("expected per-command override to win over adapter default")
	}

	forced, _ := command.New("echo", command.WithThrowOnNonzero(true))
	if !b.EffectiveThrow(forced, false) {
		t.Error("expected per-command override to win over adapter default")
	}
}

func TestNewOutputHandlers_CapturesWrites(t *testing.T) {
	b := NewBase("test", nil)
	stdout, stderr := b.NewOutputHandlers(Defaults{MaxBufferBytes: 1024})

	stdout.Write([]byte("out"))
	stderr.Write([]byte("err"))

	if string(stdout.Bytes()) != "out" {
		t.Errorf("got stdout %q", stdout.Bytes())
	}
	if string(stderr.Bytes()) != "err" {
		t.Errorf("got stderr %q", stderr.Bytes())
	}
}

func TestOverflowErr_ReportsFirstOverflowedHandler(t *testing.T) {
	b := NewBase("test", nil)
	stdout, stderr := b.NewOutputHandlers(Defaults{MaxBufferBytes: 4})

	if err := b.OverflowErr(stdout, stderr); err != nil {
		t.Fatalf("expected nil before any overflow, got %v", err)
	}

	stdout.Write([]byte("way too long"))
	err := b.OverflowErr(stdout, stderr)
	boe, ok := err.(*result.BufferOverflowError)
	if !ok {
		t.Fatalf("expected *result.BufferOverflowError, got %T", err)
	}
	if boe.LimitBytes != 4 {
		t.Errorf("got limit %d, want 4", boe.LimitBytes)
	}
}

func TestWrapError(t *testing.T) {
	b := NewBase("docker", nil)
	if b.WrapError("op", nil) != nil {
		t.Error("expected nil passthrough")
	}

	plain := b.WrapError("exec", context.DeadlineExceeded)
	aue, ok := plain.(*result.AdapterUnavailableError)
	if !ok {
		t.Fatalf("expected wrapping, got %T", plain)
	}
	if aue.Adapter != "docker" || aue.Operation != "exec" {
		t.Errorf("got %+v", aue)
	}

	already := &result.TimeoutError{Command: "x", LimitMs: 10}
	if b.WrapError("op", already) != already {
		t.Error("expected already-classified error passed through unwrapped")
	}
}
