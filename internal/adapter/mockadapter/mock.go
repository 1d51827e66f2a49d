// SPDX-License-Identifier: MPL-2.0

// Package mockadapter is a deterministic in-memory adapter for testing
// code built on pkg/engine, per §4.9. It generalizes invowk's
// MockEnvBuilder test-double pattern (a struct literal standing in for a
// real backend behind the same interface, returning fixed data instead of
// doing real work) from environment building to full command execution.
package mockadapter

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// Name is this adapter's tag, matching command.AdapterMock.
const Name = "mock"

// Matcher decides whether a command string matches a configured Response.
// Exactly one of Equals or Regex should be set.
type Matcher struct {
	Equals string
	Regex  *regexp.Regexp
}

func (m Matcher) match(commandStr string) bool {
	if m.Regex != nil {
		return m.Regex.MatchString(commandStr)
	}
	return m.Equals == commandStr
}

// Response is the canned result a matcher produces.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Signal   string
	DelayMs  int64
}

type rule struct {
	matcher  Matcher
	response Response
}

// Adapter holds an ordered list of (matcher, response) pairs plus an
// optional default response, and records every command string it sees.
type Adapter struct {
	mu              sync.Mutex
	rules           []rule
	defaultResponse *Response
	executed        []string
	counts          map[string]int
}

// New constructs an empty mock adapter.
func New() *Adapter {
	return &Adapter{counts: map[string]int{}}
}

// Name returns "mock".
func (a *Adapter) Name() string { return Name }

// IsAvailable always reports true.
func (a *Adapter) IsAvailable(ctx context.Context) bool { return true }

// Dispose resets recorded state.
func (a *Adapter) Dispose() error {
	a.Reset()
	return nil
}

// On registers a rule matching the exact command string.
func (a *Adapter) On(commandStr string, resp Response) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, rule{matcher: Matcher{Equals: commandStr}, response: resp})
	return a
}

// OnRegex registers a rule matching any command string satisfying pattern.
func (a *Adapter) OnRegex(pattern string, resp Response) *Adapter {
	re := regexp.MustCompile(pattern)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, rule{matcher: Matcher{Regex: re}, response: resp})
	return a
}

// Default sets the response used when no rule matches.
func (a *Adapter) Default(resp Response) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.defaultResponse = &resp
	return a
}

func commandString(cmd *command.Command) string {
	s := cmd.Program
	for _, arg := range cmd.Args {
		s += " " + arg
	}
	return s
}

// Execute records cmd's command string, finds the first matching rule (or
// the default), and produces its configured Response. A configured
// DelayMs is honored asynchronously so timeout tests exercise real wall
// clock behavior.
func (a *Adapter) Execute(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	if cmd.Cancel != nil && cmd.Cancel.Cancelled() {
		return nil, &result.AdapterUnavailableError{Adapter: Name, Operation: "aborted"}
	}
	cs := commandString(cmd)

	a.mu.Lock()
	a.executed = append(a.executed, cs)
	a.counts[cs]++
	resp := a.resolve(cs)
	a.mu.Unlock()

	if resp == nil {
		return nil, &result.AdapterUnavailableError{Adapter: Name, Operation: "no_mock"}
	}

	started := time.Now()
	if resp.DelayMs > 0 {
		select {
		case <-time.After(time.Duration(resp.DelayMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, &result.TimeoutError{Command: cmd.Program, LimitMs: cmd.TimeoutMs}
		}
	}
	finished := time.Now()

	return &result.Result{
		Stdout:     []byte(resp.Stdout),
		Stderr:     []byte(resp.Stderr),
		ExitCode:   resp.ExitCode,
		Signal:     resp.Signal,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		AdapterTag: Name,
	}, nil
}

// ExecuteSync is identical to Execute; the mock adapter has no separate
// asynchronous path.
func (a *Adapter) ExecuteSync(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	return a.Execute(ctx, cmd)
}

// resolve must be called with a.mu held.
func (a *Adapter) resolve(commandStr string) *Response {
	for _, r := range a.rules {
		if r.matcher.match(commandStr) {
			resp := r.response
			return &resp
		}
	}
	return a.defaultResponse
}

// ExecutedCommands returns every command string seen, in call order.
func (a *Adapter) ExecutedCommands() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.executed))
	copy(out, a.executed)
	return out
}

// ExecutionCount returns how many times commandStr was executed.
func (a *Adapter) ExecutionCount(commandStr string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[commandStr]
}

// Reset clears recorded history and counts, leaving configured rules intact.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executed = nil
	a.counts = map[string]int{}
}

// String aids debugging test failures.
func (a *Adapter) String() string {
	return fmt.Sprintf("mockadapter(%d rules, %d executed)", len(a.rules), len(a.executed))
}
