// SPDX-License-Identifier: MPL-2.0

package localadapter

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/corexec/uce/pkg/adapter"
	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

func TestExecute_CapturesStdout(t *testing.T) {
	a := New(adapter.Defaults{})
	cmd, _ := command.New("echo", command.WithArgs("hello"))
	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.String() != "hello" {
		t.Errorf("got %q", res.String())
	}
	if !res.Success() {
		t.Error("expected success")
	}
}

func TestExecute_ShellMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell -c semantics differ on windows")
	}
	a := New(adapter.Defaults{})
	cmd, _ := command.New("echo hi && echo bye", command.WithShell(true))
	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := res.Lines()
	if len(lines) != 2 || lines[0] != "hi" || lines[1] != "bye" {
		t.Errorf("got lines %v", lines)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exit code semantics differ on windows")
	}
	a := New(adapter.Defaults{})
	cmd, _ := command.New("sh", command.WithArgs("-c", "exit 3"))
	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("got exit code %d", res.ExitCode)
	}
	if res.Success() {
		t.Error("expected non-success")
	}
}

func TestExecute_ThrowOnNonzero(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exit code semantics differ on windows")
	}
	a := New(adapter.Defaults{ThrowOnNonzero: true})
	cmd, _ := command.New("sh", command.WithArgs("-c", "exit 1"))
	_, err := a.Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected CommandFailedError")
	}
	if _, ok := err.(*result.CommandFailedError); !ok {
		t.Errorf("expected *result.CommandFailedError, got %T", err)
	}
}

func TestExecute_SpawnENOENT(t *testing.T) {
	a := New(adapter.Defaults{})
	cmd, _ := command.New("uce-definitely-not-a-real-binary-xyz")
	_, err := a.Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected error")
	}
	aue, ok := err.(*result.AdapterUnavailableError)
	if !ok {
		t.Fatalf("expected *result.AdapterUnavailableError, got %T", err)
	}
	if aue.Operation != "spawn_enoent" {
		t.Errorf("got operation %q", aue.Operation)
	}
}

func TestExecute_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sleep binary not assumed present on windows")
	}
	a := New(adapter.Defaults{})
	cmd, _ := command.New("sleep", command.WithArgs("5"), command.WithTimeout(20))
	_, err := a.Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	te, ok := err.(*result.TimeoutError)
	if !ok {
		t.Fatalf("expected *result.TimeoutError, got %T", err)
	}
	if te.LimitMs != 20 {
		t.Errorf("got limit %d", te.LimitMs)
	}
}

func TestExecute_PreSpawnCancelAborts(t *testing.T) {
	a := New(adapter.Defaults{})
	tok := command.NewCancelToken()
	tok.Cancel()
	cmd, _ := command.New("echo", command.WithCancel(tok))
	_, err := a.Execute(context.Background(), cmd)
	if !result.IsAborted(err) {
		t.Fatalf("expected aborted error, got %v", err)
	}
}

func TestExecute_PostSpawnCancelYieldsSignalResult(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signal semantics differ on windows")
	}
	a := New(adapter.Defaults{})
	tok := command.NewCancelToken()
	cmd, _ := command.New("sleep", command.WithArgs("5"), command.WithCancel(tok))

	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Cancel()
	}()

	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("expected normal Result with Signal set, got error: %v", err)
	}
	if res.Signal == "" {
		t.Error("expected non-empty Signal after post-spawn cancellation")
	}
}

func TestIsAvailable_AlwaysTrue(t *testing.T) {
	a := New(adapter.Defaults{})
	if !a.IsAvailable(context.Background()) {
		t.Error("expected local adapter always available")
	}
}
