// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"io"
	"sync"

	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// RunningHandle is a per-execution object, owning its Command until the
// moment it starts and a one-shot completion signal after. Per §9's design
// note for ownership-strict languages, this is a plain struct with a
// completion channel rather than an extended promise: fluent configuration
// (Timeout/Quiet/NoThrow/Stdin) mutates the still-unstarted
// Command; Wait (or any accessor) triggers the actual spawn on first use.
type RunningHandle struct {
	mu      sync.Mutex
	engine  *Engine
	cmd     *command.Command
	cancel  *command.CancelToken
	started bool
	done    chan struct{}
	res     *result.Result
	err     error

	stdinWriter *io.PipeWriter
}

func newHandle(e *Engine, cmd *command.Command) *RunningHandle {
	return &RunningHandle{engine: e, cmd: cmd, done: make(chan struct{})}
}

// failedHandle returns a handle whose Wait immediately yields err, used
// when Chain.build's command.New validation fails before a Command even
// exists to run.
func failedHandle(err error) *RunningHandle {
	h := &RunningHandle{done: make(chan struct{}), err: err}
	close(h.done)
	return h
}

// mutate applies fn to the handle's Command if it hasn't started yet; once
// started, fluent configuration calls are no-ops, since the Command has
// already been handed to an adapter.
func (h *RunningHandle) mutate(fn func(*command.Command)) *RunningHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.cmd == nil {
		return h
	}
	fn(h.cmd)
	return h
}

// Timeout overrides the wall-clock timeout in milliseconds.
func (h *RunningHandle) Timeout(ms int64) *RunningHandle {
	return h.mutate(func(c *command.Command) { c.TimeoutMs = ms })
}

// Quiet suppresses stdout/stderr passthrough (switches both to captured pipes).
func (h *RunningHandle) Quiet() *RunningHandle {
	return h.mutate(func(c *command.Command) {
		c.Stdout = command.StdioPipe
		c.Stderr = command.StdioPipe
	})
}

// NoThrow overrides throw_on_nonzero for this run only: a non-zero exit
// resolves as a normal Result instead of *result.CommandFailedError.
func (h *RunningHandle) NoThrow() *RunningHandle {
	return h.mutate(func(c *command.Command) { c.ThrowOverride = boolPtr(false) })
}

func boolPtr(b bool) *bool { return &b }

// Stdin returns a writer feeding the child's stdin, created lazily on first
// call. Must be called before the handle starts (before Wait/ExitCode/etc.);
// afterward it returns nil since the Command's Stdin shape is already fixed.
func (h *RunningHandle) Stdin() io.Writer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.cmd == nil {
		return nil
	}
	if h.stdinWriter == nil {
		pr, pw := io.Pipe()
		h.cmd.Stdin = command.StreamStdin(pr)
		h.stdinWriter = pw
	}
	return h.stdinWriter
}

// Cancel moves this execution's cancellation token to Cancelled. Before
// spawn, this resolves the handle as AdapterUnavailable("aborted") without
// spawning a child; after spawn, the adapter sends its configured
// TimeoutSignal and the execution resolves with Signal populated.
func (h *RunningHandle) Cancel() {
	h.ensureToken()
	h.cancel.Cancel()
}

// Kill is Cancel with an advisory signal name. The signal an adapter
// actually sends is fixed at Command construction (TimeoutSignal, default
// SIGTERM) since exec.Cmd wires its cancellation callback once at spawn;
// pass the desired signal to the chain via WithTimeoutSignal beforehand if
// it must differ from the default. Kill(signal) still reliably stops the
// execution — only the exact signal delivered may not match a late request.
func (h *RunningHandle) Kill(signal string) {
	h.mu.Lock()
	if h.cmd != nil && !h.started && signal != "" {
		h.cmd.TimeoutSignal = signal
	}
	h.mu.Unlock()
	h.Cancel()
}

func (h *RunningHandle) ensureToken() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	h.cancel = command.NewCancelToken()
	if h.cmd != nil && h.cmd.Cancel == nil {
		h.cmd.Cancel = h.cancel
	} else if h.cmd != nil {
		h.cancel = h.cmd.Cancel
	}
}

// start spawns the execution exactly once. Safe to call concurrently; only
// the first call actually starts anything.
func (h *RunningHandle) start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	cmd := h.cmd
	eng := h.engine
	h.mu.Unlock()

	if cmd == nil {
		return
	}
	if cmd.Cancel == nil {
		h.ensureToken()
	}

	go func() {
		res, err := eng.Execute(context.Background(), cmd)
		h.resolve(res, err)
	}()
}

func (h *RunningHandle) resolve(res *result.Result, err error) {
	h.mu.Lock()
	h.res, h.err = res, err
	h.mu.Unlock()
	close(h.done)
}

// Wait blocks until the execution resolves, starting it first if it hasn't
// already. Equivalent to "awaiting the handle" in §9's design note.
func (h *RunningHandle) Wait() (*result.Result, error) {
	h.start()
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.res, h.err
}

// ExitCode is Wait's exit_code future: it blocks for completion and
// reports the exit code, or 0 and the error for a typed failure that never
// produced a Result.
func (h *RunningHandle) ExitCode() (int, error) {
	res, err := h.Wait()
	if err != nil {
		return 0, err
	}
	return res.ExitCode, nil
}

// Stdout blocks for completion and returns captured stdout bytes.
func (h *RunningHandle) Stdout() ([]byte, error) {
	res, err := h.Wait()
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}

// Stderr blocks for completion and returns captured stderr bytes.
func (h *RunningHandle) Stderr() ([]byte, error) {
	res, err := h.Wait()
	if err != nil {
		return nil, err
	}
	return res.Stderr, nil
}
