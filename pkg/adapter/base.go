// SPDX-License-Identifier: MPL-2.0

package adapter

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/corexec/uce/internal/logging"
	"github.com/corexec/uce/internal/stream"
	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// Defaults are the engine-supplied fallbacks an adapter merges into every
// Command before running it (§4.5 "merge defaults").
type Defaults struct {
	Cwd            string
	Env            map[string]string
	TimeoutMs      int64
	Shell          bool
	Stdout         command.StdioMode
	Stderr         command.StdioMode
	ThrowOnNonzero bool
	MaxBufferBytes int64

	ShellPrefix  string
	ShellPostfix string
}

// Base bundles the services every concrete adapter composes: default
// merging, environment composition, the timeout/cancellation race, result
// assembly, and error wrapping. It carries no engine back-reference (per
// §9's design note); the engine passes Defaults into every call instead.
type Base struct {
	AdapterName string
	Logger      *log.Logger
}

// NewBase constructs a Base for the named adapter, defaulting to the
// package-level logger when logger is nil.
func NewBase(adapterName string, logger *log.Logger) *Base {
	if logger == nil {
		logger = logging.Default()
	}
	return &Base{AdapterName: adapterName, Logger: logger}
}

// MergeDefaults returns a new Command with cwd/env/timeout/shell/stdio
// filled in from d wherever cmd left them at their zero value. cmd itself
// is never mutated.
func (b *Base) MergeDefaults(cmd *command.Command, d Defaults) *command.Command {
	merged := *cmd
	if merged.Cwd == "" {
		merged.Cwd = d.Cwd
	}
	if merged.TimeoutMs == 0 {
		merged.TimeoutMs = d.TimeoutMs
	}
	if !merged.ShellEnabled && d.Shell {
		merged.ShellEnabled = true
	}
	if merged.ShellPrefix == "" {
		merged.ShellPrefix = d.ShellPrefix
	}
	if merged.ShellPostfix == "" {
		merged.ShellPostfix = d.ShellPostfix
	}
	if merged.Stdout == command.StdioPipe {
		merged.Stdout = d.Stdout
	}
	if merged.Stderr == command.StdioPipe {
		merged.Stderr = d.Stderr
	}
	env := map[string]string{}
	for k, v := range d.Env {
		env[k] = v
	}
	for k, v := range cmd.Env {
		env[k] = v
	}
	merged.Env = env
	return &merged
}

// ComposeEnv implements §4.5's environment composition rule: process env
// (filtered of undefined/empty-name entries) first, then base defaults,
// then per-command overrides — with PATH concatenated, not replaced, when
// an override supplies one. Returns "KEY=VALUE" slices ready for exec.Cmd.Env.
func (b *Base) ComposeEnv(cmd *command.Command, d Defaults) []string {
	composed := map[string]string{}

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		composed[k] = v
	}

	for k, v := range d.Env {
		mergeEnvVar(composed, k, v)
	}
	for k, v := range cmd.Env {
		mergeEnvVar(composed, k, v)
	}

	out := make([]string, 0, len(composed))
	for k, v := range composed {
		out = append(out, k+"="+v)
	}
	return out
}

func mergeEnvVar(composed map[string]string, k, v string) {
	if k == "PATH" {
		if existing, ok := composed[k]; ok && existing != "" {
			composed[k] = v + string(os.PathListSeparator) + existing
			return
		}
	}
	composed[k] = v
}

// WrapShellScript splices cmd's ShellPrefix/ShellPostfix around script when
// shell interpretation is enabled and either is set; otherwise returns script
// unchanged. Adapters call this once they've assembled the raw script, before
// handing it to the shell.
func (b *Base) WrapShellScript(cmd *command.Command, script string) string {
	if !cmd.ShellEnabled || (cmd.ShellPrefix == "" && cmd.ShellPostfix == "") {
		return script
	}
	var parts []string
	if cmd.ShellPrefix != "" {
		parts = append(parts, cmd.ShellPrefix)
	}
	parts = append(parts, script)
	if cmd.ShellPostfix != "" {
		parts = append(parts, cmd.ShellPostfix)
	}
	return strings.Join(parts, "\n")
}

// PreSpawnCancelErr returns a non-nil *result.AdapterUnavailableError when
// cmd's cancellation token is already cancelled, implementing §5's
// "cancelling before spawn resolves as AdapterUnavailable(aborted) without
// spawning" rule. Callers must check this before starting any child process.
func (b *Base) PreSpawnCancelErr(cmd *command.Command) error {
	if cmd.Cancel != nil && cmd.Cancel.Cancelled() {
		return &result.AdapterUnavailableError{Adapter: b.AdapterName, Operation: "aborted"}
	}
	return nil
}

// TimeoutContext derives a child context bounded by cmd's timeout (if any)
// and linked to cmd's cancellation token (if any), along with a function
// reporting whether the eventual context error was caused by the timeout
// specifically (as opposed to external cancellation or parent cancellation).
// The cleanup hook, when non-nil, runs at most once: when the context ends
// (timeout, cancellation or parent) before stop is called. It does not run
// after normal completion. Adapters use it to send TimeoutSignal to the child.
func (b *Base) TimeoutContext(parent context.Context, cmd *command.Command, cleanup func()) (ctx context.Context, timedOut func() bool, stop func()) {
	var cancels []context.CancelFunc

	ctx = parent
	if cmd.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cmd.TimeoutMs)*time.Millisecond)
		cancels = append(cancels, cancel)
	}

	cleanupDone := make(chan struct{})
	var cleanupOnce func()
	if cleanup != nil {
		fired := false
		cleanupOnce = func() {
			if !fired {
				fired = true
				cleanup()
			}
		}
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	cancels = append(cancels, watchCancel)

	if cmd.Cancel != nil || cleanupOnce != nil {
		go func() {
			select {
			case <-watchCtx.Done():
				select {
				case <-cleanupDone:
					return
				default:
				}
				if cleanupOnce != nil {
					cleanupOnce()
				}
			case <-cleanupDone:
			}
		}()
		if cmd.Cancel != nil {
			go func() {
				select {
				case <-cmd.Cancel.Done():
					watchCancel()
				case <-watchCtx.Done():
				}
			}()
		}
	}

	stop = func() {
		close(cleanupDone)
		for _, c := range cancels {
			c()
		}
	}
	timedOut = func() bool { return errors.Is(watchCtx.Err(), context.DeadlineExceeded) }
	return watchCtx, timedOut, stop
}

// NewOutputHandlers builds the pair of bounded stream.Handlers an adapter
// wires as its child's stdout/stderr target, capped at d.MaxBufferBytes
// (0 means unbounded — callers should prefer a real limit from engine.Config).
func (b *Base) NewOutputHandlers(d Defaults) (stdout, stderr *stream.Handler) {
	return stream.New(d.MaxBufferBytes, nil, nil), stream.New(d.MaxBufferBytes, nil, nil)
}

// OverflowErr reports whether either handler hit its buffer limit, returning
// the *result.BufferOverflowError to raise in that case (§4.4's "reports
// overflow instead of silently truncating"), checked ahead of any exit-code
// or signal classification since a truncated stream makes those unreliable.
func (b *Base) OverflowErr(stdout, stderr *stream.Handler) error {
	if stdout.Overflowed() {
		return &result.BufferOverflowError{LimitBytes: stdout.MaxBytes()}
	}
	if stderr.Overflowed() {
		return &result.BufferOverflowError{LimitBytes: stderr.MaxBytes()}
	}
	return nil
}

// BuildResult assembles a Result from raw adapter outputs.
func (b *Base) BuildResult(stdout, stderr []byte, exitCode int, signal string, started, finished time.Time, adapterTag string) *result.Result {
	return &result.Result{
		Stdout:     stdout,
		Stderr:     stderr,
		ExitCode:   exitCode,
		Signal:     signal,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		AdapterTag: adapterTag,
	}
}

// EffectiveThrow resolves whether a non-zero exit should raise
// *result.CommandFailedError for this specific Command: its own
// ThrowOverride wins when set, otherwise the adapter's configured default.
func (b *Base) EffectiveThrow(cmd *command.Command, defaultThrow bool) bool {
	if cmd.ThrowOverride != nil {
		return *cmd.ThrowOverride
	}
	return defaultThrow
}

// ApplyThrowPolicy returns (res, nil) normally, or (nil, *result.CommandFailedError)
// when throwOnNonzero is set and res represents a non-zero exit (§4.3, §7).
func (b *Base) ApplyThrowPolicy(throwOnNonzero bool, commandStr string, res *result.Result) (*result.Result, error) {
	if throwOnNonzero {
		if err := res.ThrowIfFailed(commandStr); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// WrapError turns any otherwise-unclassified error from an adapter's
// implementation into *result.AdapterUnavailableError, preserving the cause
// (§4.5 "error wrapping").
func (b *Base) WrapError(operation string, cause error) error {
	if cause == nil {
		return nil
	}
	var execErr result.ExecutionError
	if errors.As(cause, &execErr) {
		return cause
	}
	return &result.AdapterUnavailableError{Adapter: b.AdapterName, Operation: operation, Cause: cause}
}
