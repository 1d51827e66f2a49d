// SPDX-License-Identifier: MPL-2.0

package mockadapter

import (
	"context"
	"testing"
	"time"

	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

func TestExecute_ExactMatch(t *testing.T) {
	a := New()
	a.On("echo hi", Response{Stdout: "hi\n", ExitCode: 0})

	cmd, _ := command.New("echo", command.WithArgs("hi"))
	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.String() != "hi" {
		t.Errorf("got %q", res.String())
	}
}

func TestExecute_RegexMatch(t *testing.T) {
	a := New()
	a.OnRegex(`^deploy .+`, Response{ExitCode: 0})

	cmd, _ := command.New("deploy", command.WithArgs("prod"))
	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Error("expected success")
	}
}

func TestExecute_InsertionOrderBreaksTies(t *testing.T) {
	a := New()
	a.OnRegex(`.*`, Response{ExitCode: 1})
	a.OnRegex(`.*`, Response{ExitCode: 2})

	cmd, _ := command.New("anything")
	res, _ := a.Execute(context.Background(), cmd)
	if res.ExitCode != 1 {
		t.Errorf("expected first matching rule to win, got exit code %d", res.ExitCode)
	}
}

func TestExecute_DefaultResponseFallback(t *testing.T) {
	a := New()
	a.Default(Response{ExitCode: 7})

	cmd, _ := command.New("unmatched")
	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("got exit code %d", res.ExitCode)
	}
}

func TestExecute_NoMatchNoDefaultFails(t *testing.T) {
	a := New()
	cmd, _ := command.New("nope")
	_, err := a.Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected no_mock error")
	}
	aue, ok := err.(*result.AdapterUnavailableError)
	if !ok {
		t.Fatalf("expected *result.AdapterUnavailableError, got %T", err)
	}
	if aue.Operation != "no_mock" {
		t.Errorf("got operation %q", aue.Operation)
	}
}

func TestExecute_DelayHonoredAsynchronously(t *testing.T) {
	a := New()
	a.On("slow", Response{ExitCode: 0, DelayMs: 20})

	cmd, _ := command.New("slow")
	start := time.Now()
	_, err := a.Execute(context.Background(), cmd)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 20*time.Millisecond {
		t.Errorf("expected delay honored, elapsed %v", elapsed)
	}
}

func TestExecute_DelayInterruptedByContextDeadline(t *testing.T) {
	a := New()
	a.On("slow", Response{ExitCode: 0, DelayMs: 100})

	cmd, _ := command.New("slow")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Execute(ctx, cmd)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if _, ok := err.(*result.TimeoutError); !ok {
		t.Errorf("expected *result.TimeoutError, got %T", err)
	}
}

func TestExecutedCommandsAndCounts(t *testing.T) {
	a := New()
	a.Default(Response{ExitCode: 0})

	cmd, _ := command.New("echo", command.WithArgs("a"))
	_, _ = a.Execute(context.Background(), cmd)
	_, _ = a.Execute(context.Background(), cmd)

	if got := a.ExecutionCount("echo a"); got != 2 {
		t.Errorf("got count %d", got)
	}
	if len(a.ExecutedCommands()) != 2 {
		t.Errorf("got %v", a.ExecutedCommands())
	}
}

func TestReset_ClearsHistoryKeepsRules(t *testing.T) {
	a := New()
	a.Default(Response{ExitCode: 0})
	cmd, _ := command.New("echo")
	_, _ = a.Execute(context.Background(), cmd)

	a.Reset()
	if len(a.ExecutedCommands()) != 0 {
		t.Error("expected history cleared")
	}
	if _, err := a.Execute(context.Background(), cmd); err != nil {
		t.Errorf("expected rules to survive reset, got error: %v", err)
	}
}
